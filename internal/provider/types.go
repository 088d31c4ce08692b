// Package provider fetches a researcher's works from the bibliographic provider
// and normalizes them into candidate records.
package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WorksPage is one page of the works endpoint.
type WorksPage struct {
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Items   []Work `json:"items"`
}

// Work is a single bibliographic item as returned by the provider.
type Work struct {
	Title    string         `json:"title"`
	Authors  AuthorList     `json:"authors"`
	Journal  string         `json:"journal"`
	Year     FlexibleString `json:"year"`
	DOI      string         `json:"doi"`
	Type     string         `json:"type"`
	Abstract string         `json:"abstract"`
	URL      string         `json:"url"`
}

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// Int parses the value as an integer, returning 0 when it is empty or malformed.
func (f FlexibleString) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(f)))
	if err != nil {
		return 0
	}
	return n
}

// AuthorList accepts either an array of {"name": ...} objects, an array of
// strings, or a single pre-joined string.
type AuthorList []string

func (a *AuthorList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		if strings.TrimSpace(joined) == "" {
			*a = nil
			return nil
		}
		*a = AuthorList{joined}
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*a = names
		return nil
	}

	var objs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &objs); err != nil {
		return fmt.Errorf("cannot unmarshal %s into AuthorList", string(data))
	}
	names = make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, o.Name)
	}
	*a = names
	return nil
}
