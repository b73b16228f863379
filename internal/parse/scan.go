package parse

import (
	"regexp"
	"strings"
)

var fieldRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\s*:\s*(.*?)\s*$`)

// Scan holds the structured data read from a printed label.
type Scan struct {
	FullSN       string
	SerialNumber string
	Fields       map[string]string
}

// ParseScan normalises a raw barcode payload. Labels are either a bare serial
// or a list of KEY:VALUE segments separated by ';', in which case the SN
// segment is the serial. Keys are upper-cased.
func ParseScan(raw string) Scan {
	full := strings.TrimSpace(raw)
	s := Scan{FullSN: full, SerialNumber: full}
	if !strings.Contains(full, ":") {
		return s
	}

	fields := make(map[string]string)
	for _, seg := range strings.Split(full, ";") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		m := fieldRe.FindStringSubmatch(seg)
		if m == nil {
			// Not a structured label after all.
			return s
		}
		fields[strings.ToUpper(m[1])] = m[2]
	}
	s.Fields = fields
	if sn := fields["SN"]; sn != "" {
		s.SerialNumber = sn
	}
	return s
}
