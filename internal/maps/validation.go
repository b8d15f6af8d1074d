package maps

import (
	"errors"
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/microcosm-cc/bluemonday"
)

const (
	colorSep      = `(?:\s*,\s*|\s+)`
	colorAlphaSep = `(?:\s*[,/]\s*)`

	maxDrawnElements = 5000
	maxImageRefLen   = 2048
	maxCoordinate    = 1e7
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	sanitizer    = bluemonday.StrictPolicy()

	rgbPattern = regexp.MustCompile(`^rgba?\(\s*([0-9.]+%?)` + colorSep + `([0-9.]+%?)` + colorSep + `([0-9.]+%?)(?:` + colorAlphaSep + `([0-9.]+%?))?\s*\)$`)
	hslPattern = regexp.MustCompile(`^hsla?\(\s*(-?[0-9.]+)(?:deg)?` + colorSep + `([0-9.]+%)` + colorSep + `([0-9.]+%)(?:` + colorAlphaSep + `([0-9.]+%?))?\s*\)$`)
	hexDigits  = regexp.MustCompile(`^#(?:[0-9a-f]{3,4}|[0-9a-f]{6}|[0-9a-f]{8})$`)
)

var namedColors = func() map[string]struct{} {
	names := []string{
		"aliceblue", "antiquewhite", "aqua", "aquamarine", "azure", "beige",
		"bisque", "black", "blanchedalmond", "blue", "blueviolet", "brown",
		"burlywood", "cadetblue", "chartreuse", "chocolate", "coral",
		"cornflowerblue", "cornsilk", "crimson", "cyan", "darkblue", "darkcyan",
		"darkgoldenrod", "darkgray", "darkgreen", "darkgrey", "darkkhaki",
		"darkmagenta", "darkolivegreen", "darkorange", "darkorchid", "darkred",
		"darksalmon", "darkseagreen", "darkslateblue", "darkslategray",
		"darkslategrey", "darkturquoise", "darkviolet", "deeppink", "deepskyblue",
		"dimgray", "dimgrey", "dodgerblue", "firebrick", "floralwhite",
		"forestgreen", "fuchsia", "gainsboro", "ghostwhite", "gold", "goldenrod",
		"gray", "green", "greenyellow", "grey", "honeydew", "hotpink", "indianred",
		"indigo", "ivory", "khaki", "lavender", "lavenderblush", "lawngreen",
		"lemonchiffon", "lightblue", "lightcoral", "lightcyan",
		"lightgoldenrodyellow", "lightgray", "lightgreen", "lightgrey", "lightpink",
		"lightsalmon", "lightseagreen", "lightskyblue", "lightslategray",
		"lightslategrey", "lightsteelblue", "lightyellow", "lime", "limegreen",
		"linen", "magenta", "maroon", "mediumaquamarine", "mediumblue",
		"mediumorchid", "mediumpurple", "mediumseagreen", "mediumslateblue",
		"mediumspringgreen", "mediumturquoise", "mediumvioletred", "midnightblue",
		"mintcream", "mistyrose", "moccasin", "navajowhite", "navy", "oldlace",
		"olive", "olivedrab", "orange", "orangered", "orchid", "palegoldenrod",
		"palegreen", "paleturquoise", "palevioletred", "papayawhip", "peru", "pink",
		"plum", "powderblue", "purple", "rebeccapurple", "red", "rosybrown",
		"royalblue", "saddlebrown", "salmon", "sandybrown", "seagreen", "seashell",
		"sienna", "silver", "skyblue", "slateblue", "slategray", "slategrey", "snow",
		"springgreen", "steelblue", "tan", "teal", "thistle", "tomato", "turquoise",
		"violet", "wheat", "white", "whitesmoke", "yellow", "yellowgreen",
		"transparent", "currentcolor",
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out
}()

func strokeValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("strokecolor", func(fl validator.FieldLevel) bool {
			return IsColor(fl.Field().String())
		})
	})
	return validate
}

// IsColor accepts the CSS color forms a canvas understands: hex with or
// without alpha, rgb()/rgba(), hsl()/hsla() and the CSS named colors.
func IsColor(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || hasMarkup(value) {
		return false
	}
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "#"):
		return isHexColor(lower)
	case strings.HasPrefix(lower, "rgb"):
		return isRGBColor(lower)
	case strings.HasPrefix(lower, "hsl"):
		return isHSLColor(lower)
	}
	_, ok := namedColors[lower]
	return ok
}

func isHexColor(value string) bool {
	if !hexDigits.MatchString(value) {
		return false
	}
	// colorful parses the rgb part; the alpha digits are already known hex.
	rgb := value
	switch len(value) {
	case 5:
		rgb = value[:4]
	case 9:
		rgb = value[:7]
	}
	_, err := colorful.Hex(rgb)
	return err == nil
}

func isRGBColor(value string) bool {
	match := rgbPattern.FindStringSubmatch(value)
	if match == nil {
		return false
	}
	var channels [3]float64
	for i, raw := range match[1:4] {
		v, ok := parseChannel(raw, 255)
		if !ok {
			return false
		}
		channels[i] = v
	}
	if match[4] != "" && !validAlpha(match[4]) {
		return false
	}
	return colorful.Color{R: channels[0], G: channels[1], B: channels[2]}.IsValid()
}

func isHSLColor(value string) bool {
	match := hslPattern.FindStringSubmatch(value)
	if match == nil {
		return false
	}
	hue, err := strconv.ParseFloat(match[1], 64)
	if err != nil || math.IsNaN(hue) || math.IsInf(hue, 0) {
		return false
	}
	for _, raw := range match[2:4] {
		if _, ok := parseChannel(raw, 100); !ok {
			return false
		}
	}
	return match[4] == "" || validAlpha(match[4])
}

// parseChannel scales raw into [0,1]. Plain numbers are out of limit,
// percentages out of 100.
func parseChannel(raw string, limit float64) (float64, bool) {
	if strings.HasSuffix(raw, "%") {
		raw = strings.TrimSuffix(raw, "%")
		limit = 100
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 || value > limit {
		return 0, false
	}
	return value / limit, true
}

func validAlpha(raw string) bool {
	_, ok := parseChannel(raw, 1)
	return ok
}

// ValidateElements checks a full drawn-element sequence before it is persisted.
func ValidateElements(elems []DrawnElement) error {
	if len(elems) > maxDrawnElements {
		return invalid("drawnElements", "at most %d elements are allowed", maxDrawnElements)
	}
	v := strokeValidator()
	for i, elem := range elems {
		field := fmt.Sprintf("drawnElements[%d]", i)
		if err := v.Struct(elem); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return invalid(field+"."+strings.ToLower(verrs[0].Field()), "failed %s", verrs[0].Tag())
			}
			return invalid(field, "%v", err)
		}
		for j, p := range elem.Points {
			if !finite(p.X) || !finite(p.Y) {
				return invalid(fmt.Sprintf("%s.points[%d]", field, j), "coordinates must be finite numbers")
			}
		}
	}
	return nil
}

// normalizeImageRef trims the reference so the stored value is the one
// that was validated.
func normalizeImageRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	return &trimmed
}

// ValidateImageRef accepts nil, and otherwise requires a plain non-empty reference.
func ValidateImageRef(ref *string) error {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return invalid("mapUrl", "must not be empty")
	}
	if len(trimmed) > maxImageRefLen {
		return invalid("mapUrl", "must be %d characters or fewer", maxImageRefLen)
	}
	if hasMarkup(trimmed) {
		return invalid("mapUrl", "contains unsupported characters")
	}
	return nil
}

// hasMarkup reports whether the strict policy would strip anything from value.
func hasMarkup(value string) bool {
	return html.UnescapeString(sanitizer.Sanitize(value)) != value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= maxCoordinate
}
