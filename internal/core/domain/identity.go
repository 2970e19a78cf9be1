package domain

import (
	"encoding/json"
	"strconv"
)

// ClientID is the opaque identifier a client supplies when it registers.
// The browser clients send numeric ids, so the raw JSON token is preserved:
// an id that arrived as a number is marshalled back as a number.
type ClientID string

func (id ClientID) String() string { return string(id) }

func (id ClientID) IsZero() bool { return id == "" }

// UnmarshalJSON accepts both string and numeric tokens.
func (id *ClientID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ClientID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ClientID(n.String())
	return nil
}

func (id ClientID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
