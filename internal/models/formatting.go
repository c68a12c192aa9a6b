package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Formatting is the document-wide style record
type Formatting struct {
	Alignment  string     `json:"alignment"`
	FontSize   StyleValue `json:"fontSize"`
	FontFamily string     `json:"fontFamily"`
	Bold       bool       `json:"bold"`
	Italic     bool       `json:"italic"`
	Underline  bool       `json:"underline"`
	Color      string     `json:"color"`
	LineHeight StyleValue `json:"lineHeight"`
}

// DefaultFormatting is the style record a new document starts with
func DefaultFormatting() Formatting {
	return Formatting{
		Alignment:  "left",
		FontSize:   "14",
		FontFamily: "Arial",
		Color:      "#000000",
		LineHeight: "1.6",
	}
}

// FormattingPatch is a partial formatting update
// Learning: nil pointer = attribute not supplied, so it keeps its prior value
type FormattingPatch struct {
	Alignment  *string     `json:"alignment,omitempty"`
	FontSize   *StyleValue `json:"fontSize,omitempty"`
	FontFamily *string     `json:"fontFamily,omitempty"`
	Bold       *bool       `json:"bold,omitempty"`
	Italic     *bool       `json:"italic,omitempty"`
	Underline  *bool       `json:"underline,omitempty"`
	Color      *string     `json:"color,omitempty"`
	LineHeight *StyleValue `json:"lineHeight,omitempty"`
}

// Apply overlays the supplied attributes of p onto f and returns the result
func (f Formatting) Apply(p FormattingPatch) Formatting {
	if p.Alignment != nil {
		f.Alignment = *p.Alignment
	}
	if p.FontSize != nil {
		f.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		f.FontFamily = *p.FontFamily
	}
	if p.Bold != nil {
		f.Bold = *p.Bold
	}
	if p.Italic != nil {
		f.Italic = *p.Italic
	}
	if p.Underline != nil {
		f.Underline = *p.Underline
	}
	if p.Color != nil {
		f.Color = *p.Color
	}
	if p.LineHeight != nil {
		f.LineHeight = *p.LineHeight
	}
	return f
}

var (
	ErrInvalidFormatting = errors.New("invalid formatting")

	alignments = map[string]bool{"left": true, "center": true, "right": true, "justify": true}
	hexColor   = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	// Browsers report queryCommandValue('foreColor') as rgb(r, g, b)
	funcColor  = regexp.MustCompile(`^(?i)(rgba?|hsla?)\(\s*[0-9.]+%?\s*(,\s*[0-9.]+%?\s*){2}(,\s*[0-9.]+%?\s*)?\)$`)
	namedColor = regexp.MustCompile(`^[a-zA-Z]{3,20}$`)
)

func validColor(c string) bool {
	return hexColor.MatchString(c) || funcColor.MatchString(c) || namedColor.MatchString(c)
}

// Validate checks the supplied attribute values
func (p FormattingPatch) Validate() error {
	if p.Alignment != nil && !alignments[*p.Alignment] {
		return fmt.Errorf("%w: alignment %q", ErrInvalidFormatting, *p.Alignment)
	}
	if p.Color != nil && !validColor(*p.Color) {
		return fmt.Errorf("%w: color %q", ErrInvalidFormatting, *p.Color)
	}
	if p.FontFamily != nil && *p.FontFamily == "" {
		return fmt.Errorf("%w: empty fontFamily", ErrInvalidFormatting)
	}
	if p.FontSize != nil && !p.FontSize.positive() {
		return fmt.Errorf("%w: fontSize %q", ErrInvalidFormatting, string(*p.FontSize))
	}
	if p.LineHeight != nil && !p.LineHeight.positive() {
		return fmt.Errorf("%w: lineHeight %q", ErrInvalidFormatting, string(*p.LineHeight))
	}
	return nil
}

// StyleValue is a numeric style attribute kept in its textual form.
// Clients send it either as a string ("14") or as a bare number (14).
type StyleValue string

func (v *StyleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StyleValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("style value must be a string or number: %w", err)
	}
	*v = StyleValue(n.String())
	return nil
}

func (v StyleValue) positive() bool {
	f, err := strconv.ParseFloat(string(v), 64)
	return err == nil && f > 0
}
