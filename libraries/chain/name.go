package chain

import (
	"fmt"

	"github.com/greymass/abicached/libraries/encoding"
)

// Name is an account, action or permission name in its packed uint64 form.
type Name uint64

var (
	SystemAccount = Name(StringToName("eosio"))
	SetabiAction  = Name(StringToName("setabi"))
)

func N(s string) Name {
	return Name(StringToName(s))
}

func (n Name) String() string {
	return NameToString(uint64(n))
}

func (n Name) Valid() bool {
	return n != 0
}

func (n Name) MarshalJSON() ([]byte, error) {
	return encoding.JSONiter.Marshal(n.String())
}

func (n *Name) UnmarshalJSON(data []byte) error {
	var s string
	if err := encoding.JSONiter.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("name must be a string: %w", err)
	}
	*n = N(s)
	return nil
}

func charToSymbol(c byte) uint64 {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1
	}
	return 0
}

func symbolToChar(s byte) byte {
	switch {
	case s >= 6 && s <= 31:
		return s - 6 + 'a'
	case s >= 1 && s <= 5:
		return s - 1 + '1'
	}
	return '.'
}

func StringToName(str string) uint64 {
	var name uint64
	i := 0
	for ; i < 12 && i < len(str); i++ {
		name |= (charToSymbol(str[i]) & 0x1F) << (64 - 5*(i+1))
	}
	if i == 12 && len(str) > 12 {
		name |= charToSymbol(str[12]) & 0x0F
	}
	return name
}

func NameToString(name uint64) string {
	var buf [13]byte
	for i := 0; i < 12; i++ {
		buf[i] = symbolToChar(byte((name >> (64 - 5*(i+1))) & 0x1F))
	}
	buf[12] = symbolToChar(byte(name & 0x0F))

	end := len(buf)
	for end > 0 && buf[end-1] == '.' {
		end--
	}
	return string(buf[:end])
}
