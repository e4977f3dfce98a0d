package service

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseCSV reads a semicolon-separated bank statement export. The first line
// carries statement metadata:
//
//	Compte;<number>;Solde;<balance>;Du;<dd/mm/yyyy>;Au;<dd/mm/yyyy>
//
// followed by a column header and one record per line:
//
//	Date;Date valeur;Libelle;Detail;Debit;Credit
//
// Amounts use a comma decimal separator. Lines with an unparseable date or
// amount abort the parse; the import never partially applies a broken file.
func ParseCSV(r io.Reader, filename string) (ImportMeta, []ParsedRecord, error) {
	meta := ImportMeta{Filename: filename}

	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.Comma = ';'
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err != nil {
		return meta, nil, fmt.Errorf("statement header: %w", err)
	}
	if err := parseMeta(&meta, header); err != nil {
		return meta, nil, err
	}

	var records []ParsedRecord
	line := 1
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return meta, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 2 && isColumnHeader(rec) {
			continue
		}
		if len(rec) < 6 {
			return meta, nil, fmt.Errorf("line %d: expected 6 columns (date, value date, label, detail, debit, credit)", line)
		}

		var pr ParsedRecord
		pr.AccountingDate, err = parseStatementDate(rec[0])
		if err != nil {
			return meta, nil, fmt.Errorf("line %d date: %w", line, err)
		}
		if strings.TrimSpace(rec[1]) != "" {
			vd, err := parseStatementDate(rec[1])
			if err != nil {
				return meta, nil, fmt.Errorf("line %d value date: %w", line, err)
			}
			pr.ValueDate = &vd
		}
		pr.Label = strings.TrimSpace(rec[2])
		if d := strings.TrimSpace(rec[3]); d != "" {
			pr.Detail = &d
		}
		pr.Debit, err = parseStatementAmount(rec[4])
		if err != nil {
			return meta, nil, fmt.Errorf("line %d debit: %w", line, err)
		}
		pr.Credit, err = parseStatementAmount(rec[5])
		if err != nil {
			return meta, nil, fmt.Errorf("line %d credit: %w", line, err)
		}
		if len(rec) > 6 {
			pr.AccountLabel = strings.TrimSpace(rec[6])
		}
		records = append(records, pr)
	}
	return meta, records, nil
}

func parseMeta(meta *ImportMeta, fields []string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		key := strings.ToLower(strings.TrimSpace(fields[i]))
		val := strings.TrimSpace(fields[i+1])
		switch key {
		case "compte":
			meta.AccountNumber = val
		case "solde":
			d, err := parseStatementAmount(val)
			if err != nil {
				return fmt.Errorf("statement balance: %w", err)
			}
			meta.Balance = d
		case "du":
			t, err := parseStatementDate(val)
			if err != nil {
				return fmt.Errorf("statement range start: %w", err)
			}
			meta.RangeStart = &t
		case "au":
			t, err := parseStatementDate(val)
			if err != nil {
				return fmt.Errorf("statement range end: %w", err)
			}
			meta.RangeEnd = &t
		}
	}
	if meta.AccountNumber == "" {
		return fmt.Errorf("statement header: missing account number: %w", ErrValidation)
	}
	return nil
}

func isColumnHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := parseStatementDate(rec[0])
	return err != nil
}

func parseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseStatementAmount returns nil for an empty cell. Comma decimal
// separators and embedded spaces (thousands grouping) are accepted.
func parseStatementAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
