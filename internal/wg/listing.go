package wg

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"wgfleet/internal/models"
)

// listingSchema описывает вывод `wg show <if> <verb>`: одна строка на пира,
// поля через пробелы, первым идёт публичный ключ.
type listingSchema struct {
	verb string
	// fields: точное число полей вместе с ключом; minFields для листингов переменной ширины.
	fields    int
	minFields int
}

var (
	transferListing   = listingSchema{verb: "transfer", fields: 3}
	handshakeListing  = listingSchema{verb: "latest-handshakes", fields: 2}
	endpointListing   = listingSchema{verb: "endpoints", fields: 2}
	allowedIPsListing = listingSchema{verb: "allowed-ips", minFields: 2}
)

// parse проверяет каждую строку по схеме и возвращает ключ → остальные поля.
// Первая же неподходящая строка даёт ошибку, молча ничего не подставляем.
func (s listingSchema) parse(out []byte) (map[string][]string, error) {
	rows := make(map[string][]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	n := 0
	for sc.Scan() {
		n++
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		if s.fields > 0 && len(f) != s.fields {
			return nil, fmt.Errorf("%w: %s line %d: want %d fields, got %d", models.ErrMalformedListing, s.verb, n, s.fields, len(f))
		}
		if s.minFields > 0 && len(f) < s.minFields {
			return nil, fmt.Errorf("%w: %s line %d: want at least %d fields, got %d", models.ErrMalformedListing, s.verb, n, s.minFields, len(f))
		}
		if _, dup := rows[f[0]]; dup {
			return nil, fmt.Errorf("%w: %s line %d: duplicate key", models.ErrMalformedListing, s.verb, n)
		}
		rows[f[0]] = f[1:]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedListing, s.verb, err)
	}
	return rows, nil
}
