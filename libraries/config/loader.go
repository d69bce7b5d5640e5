package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

func CheckVersion(version string) {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Println(version)
			os.Exit(0)
		}
	}
}

type LoadOptions struct {
	ConfigFlag    string
	DefaultConfig string
	StrictINI     bool
	Output        io.Writer
}

// option is one tagged struct field. It doubles as the flag.Value so flags
// and INI keys share the same parsing.
type option struct {
	value    reflect.Value
	name     string
	aliases  []string
	help     string
	def      string
	required bool
}

func (o *option) String() string {
	if !o.value.IsValid() {
		return ""
	}
	return fmt.Sprint(o.value.Interface())
}

func (o *option) Set(s string) error {
	return setValue(o.value, s)
}

func (o *option) IsBoolFlag() bool {
	return o.value.IsValid() && o.value.Kind() == reflect.Bool
}

// Load fills cfg from struct tag defaults, then an INI file (-config or
// ./config.ini when present), then command line flags.
//
// Recognised tags: name, alias (comma separated), default, help, required.
func Load(cfg interface{}, args []string) error {
	return LoadWithOptions(cfg, args, nil)
}

func LoadWithOptions(cfg interface{}, args []string, opts *LoadOptions) error {
	if opts == nil {
		opts = &LoadOptions{}
	}
	if opts.ConfigFlag == "" {
		opts.ConfigFlag = "config"
	}
	if opts.DefaultConfig == "" {
		opts.DefaultConfig = "./config.ini"
	}

	options, err := collect(cfg)
	if err != nil {
		return err
	}
	for _, o := range options {
		if o.def == "" {
			continue
		}
		if err := o.Set(o.def); err != nil {
			return fmt.Errorf("invalid default for %s: %w", o.name, err)
		}
	}

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	if opts.Output != nil {
		fs.SetOutput(opts.Output)
	}
	var configPath string
	fs.StringVar(&configPath, opts.ConfigFlag, "", "Path to config file")

	// Flags are parsed into staging options first so the INI file can be
	// applied underneath them.
	staged := make(map[string]*option, len(options))
	for _, o := range options {
		s := &option{value: reflect.New(o.value.Type()).Elem(), name: o.name}
		staged[o.name] = s
		fs.Var(s, o.name, o.help)
		for _, a := range o.aliases {
			staged[a] = s
			fs.Var(s, a, "alias for -"+o.name)
		}
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return err
	}

	if configPath == "" {
		if _, err := os.Stat(opts.DefaultConfig); err == nil {
			configPath = opts.DefaultConfig
		}
	}
	if configPath != "" {
		if err := loadINI(configPath, options, opts.StrictINI); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	byName := make(map[string]*option, len(options))
	for _, o := range options {
		byName[o.name] = o
	}
	fs.Visit(func(f *flag.Flag) {
		if s, ok := staged[f.Name]; ok {
			byName[s.name].value.Set(s.value)
		}
	})

	var missing []string
	for _, o := range options {
		if o.required && o.value.IsZero() {
			missing = append(missing, o.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func collect(cfg interface{}) ([]*option, error) {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("cfg must be a pointer to a struct")
	}
	v = v.Elem()
	t := v.Type()

	var options []*option
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !v.Field(i).CanSet() || sf.Tag.Get("name") == "-" {
			continue
		}
		o := &option{
			value:    v.Field(i),
			name:     sf.Tag.Get("name"),
			help:     sf.Tag.Get("help"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
		}
		if o.name == "" {
			o.name = toKebabCase(sf.Name)
		}
		if alias := sf.Tag.Get("alias"); alias != "" {
			for _, a := range strings.Split(alias, ",") {
				o.aliases = append(o.aliases, strings.TrimSpace(a))
			}
		}
		options = append(options, o)
	}
	return options, nil
}

func loadINI(path string, options []*option, strict bool) error {
	keys := make(map[string]*option)
	for _, o := range options {
		keys[o.name] = o
		for _, a := range o.aliases {
			keys[a] = o
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' || line[0] == '[' {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		o, ok := keys[key]
		if !ok {
			if strict {
				return fmt.Errorf("unknown configuration key at line %d: %s", lineNum, key)
			}
			continue
		}
		if err := o.Set(value); err != nil {
			return fmt.Errorf("error parsing '%s' at line %d: %w", key, lineNum, err)
		}
	}
	return scanner.Err()
}

func setValue(fv reflect.Value, value string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Int, reflect.Int32:
		v, err := strconv.ParseInt(value, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(v)
	case reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			fv.SetInt(int64(d))
			return nil
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(v)
	case reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetUint(v)
	case reflect.Bool:
		fv.SetBool(ParseBool(value))
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", fv.Type())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type: %v", fv.Kind())
	}
	return nil
}

func toKebabCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		result.WriteRune(r)
	}
	return result.String()
}

func ParseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}
