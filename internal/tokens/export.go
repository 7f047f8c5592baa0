package tokens

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/tatkal-desk/tatkal/web"
)

var (
	passengerHeader = []string{"Token Number", "Class", "Type", "Passengers", "Status"}
	adminHeader     = append(append([]string(nil), passengerHeader...), "Aadhaar/Reason")
)

var slipTemplate = template.Must(template.ParseFS(web.Templates, "templates/confirmation.txt.tmpl"))

// WriteTokensCSV writes the token list. The admin export adds the
// Aadhaar/Reason column.
func WriteTokensCSV(w io.Writer, list []Token, admin bool) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := passengerHeader
	if admin {
		header = adminHeader
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, t := range list {
		record := []string{
			t.Number,
			string(t.Class),
			string(t.Type),
			strconv.Itoa(t.Passengers),
			string(t.Status),
		}
		if admin {
			record = append(record, t.AadhaarOrReason())
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type slipView struct {
	Class      Class
	Passengers int
	Type       string
}

// RenderSlip renders the plain-text confirmation slip for reg.
func RenderSlip(reg Registration) (string, error) {
	var buf bytes.Buffer
	view := slipView{
		Class:      reg.Class,
		Passengers: reg.Passengers,
		Type:       strings.ToLower(string(reg.Type)),
	}
	if err := slipTemplate.ExecuteTemplate(&buf, "confirmation", view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
