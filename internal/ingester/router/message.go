package router

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/gridstats/gridstats/internal/ingester/griderrors"
)

// Message is one logical message from the push feed. An envelope body holds either a
// single message or a msgGrp container wrapping several messages of the same type.
type Message struct {
	Subject string `xml:"subject"`
	Rows    []Row  `xml:"row"`
}

// Row carries the wire columns of one data row. All fields are kept as strings;
// handlers parse the ones they use.
type Row struct {
	TS string `xml:"TS"` // spot time
	TP string `xml:"TP"` // publish time
	TE string `xml:"TE"` // effective time
	SD string `xml:"SD"` // settlement date
	SP string `xml:"SP"` // settlement period
	SF string `xml:"SF"` // system frequency
	FT string `xml:"FT"` // fuel type
	FG string `xml:"FG"` // fuel generation
	SW string `xml:"SW"` // system warning text
	SE string `xml:"SE"` // stable export limit
	VE string `xml:"VE"` // export limit level
	VF string `xml:"VF"` // import limit level
	VP string `xml:"VP"` // physical notification level
	LP string `xml:"LP"` // loss of load probability
	DR string `xml:"DR"` // de-rated margin
}

// parseEnvelope decodes an envelope body into its logical messages, flattening
// msgGrp containers into their contained messages in document order.
func parseEnvelope(body []byte) ([]*Message, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, &griderrors.ErrParse{Source: "envelope", Message: err.Error()}
	}
	if root == "msgGrp" {
		var group struct {
			Messages []*Message `xml:"msg"`
		}
		if err := xml.Unmarshal(body, &group); err != nil {
			return nil, &griderrors.ErrParse{Source: "envelope", Message: err.Error()}
		}
		return group.Messages, nil
	}
	var message Message
	if err := xml.Unmarshal(body, &message); err != nil {
		return nil, &griderrors.ErrParse{Source: "envelope", Message: err.Error()}
	}
	return []*Message{&message}, nil
}

func rootElement(body []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// UnitFromSubject extracts the BM unit name from a message subject such as
// "BMRA.DYNAMIC.T_MEDP-1.SEL". Only DYNAMIC, BM and RR subjects identify a unit.
func UnitFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return "", false
	}
	switch parts[1] {
	case "DYNAMIC", "BM", "RR":
		return parts[2], true
	}
	return "", false
}

// ParseTimestamp parses the ":GMT"-suffixed timestamp format used by feed rows.
func ParseTimestamp(ts string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05Z07:00", strings.Replace(ts, ":GMT", "Z", 1))
}
