package repository

import (
	"fmt"

	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/holiman/uint256"
)

// Amounts are stored as NUMERIC(78,0). They are written as decimal strings
// cast with ::numeric and read back with ::text.

func amountArg(v *uint256.Int) string {
	return safemath.Clone(v).Dec()
}

func nullableAmountArg(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

// amountScanner decodes a ::text column into an amount. NULL yields nil.
type amountScanner struct {
	dst **uint256.Int
}

func scanAmount(dst **uint256.Int) *amountScanner {
	return &amountScanner{dst: dst}
}

func (s *amountScanner) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case nil:
		*s.dst = nil
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("cannot scan %T into amount", src)
	}

	parsed, err := safemath.Parse(text)
	if err != nil {
		return err
	}
	*s.dst = parsed
	return nil
}
