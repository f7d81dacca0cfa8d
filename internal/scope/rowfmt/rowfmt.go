// Package rowfmt turns result rows into delimited text lines.
package rowfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
)

// TimeLayout renders temporal column values
const TimeLayout = "2006-01-02 15:04:05.999999999"

// Serializer renders rows as delimiter-joined lines
type Serializer struct {
	delimiter string
	charset   string
	enc       encoding.Encoding
}

// New creates a serializer. An empty delimiter or charset falls back to the defaults.
func New(delimiter, charset string) (*Serializer, error) {
	if delimiter == "" {
		delimiter = config.DefaultDelimiter
	}
	if charset == "" {
		charset = config.DefaultCharset
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported default.charset.resultset %q: %v", config.ErrConfiguration, charset, err)
	}

	return &Serializer{delimiter: delimiter, charset: charset, enc: enc}, nil
}

// Serialize returns one line per row in row order. An empty input yields an empty, non-nil slice.
func (s *Serializer) Serialize(rows [][]any) ([]string, error) {
	lines := make([]string, 0, len(rows))
	fields := make([]string, 0, 8)

	for i, row := range rows {
		fields = fields[:0]
		for j, v := range row {
			text, err := s.format(v)
			if err != nil {
				return nil, fmt.Errorf("failed to format row %d column %d: %w", i, j, err)
			}
			fields = append(fields, text)
		}
		lines = append(lines, strings.Join(fields, s.delimiter))
	}

	return lines, nil
}

// Charset returns the configured result set charset name
func (s *Serializer) Charset() string {
	return s.charset
}

func (s *Serializer) format(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		decoded, err := s.enc.NewDecoder().Bytes(x)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s bytes: %w", s.charset, err)
		}
		return string(decoded), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(TimeLayout), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}
