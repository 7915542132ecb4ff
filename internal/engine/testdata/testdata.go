// Package testdata embeds a small labeled Postfix log for engine tests.
package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/crimson-sun/maillog/internal/model"
)

//go:embed maillog.txt
var Maillog string

//go:embed expected.json
var expectedJSON []byte

// Expected is the labeled reconstruction of Maillog.
type Expected struct {
	Year         int                 `json:"year"`
	LinesRead    int                 `json:"linesRead"`
	LinesMatched int                 `json:"linesMatched"`
	Completed    []*model.MailRecord `json:"completed"`
	Incomplete   []*model.MailRecord `json:"incomplete"`
}

// LoadExpected parses the embedded expected.json.
func LoadExpected() (*Expected, error) {
	var exp Expected
	if err := json.Unmarshal(expectedJSON, &exp); err != nil {
		return nil, fmt.Errorf("parse expected.json: %w", err)
	}
	return &exp, nil
}
