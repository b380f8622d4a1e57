package model

// NoLeafLabel is reported when the leaf presence check fails.
const NoLeafLabel = "no_leaf"

// Severity groups labels for display.
type Severity string

const (
	SeverityHealthy Severity = "healthy"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

type LabelInfo struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Treatment   string   `json:"treatment"`
	Severity    Severity `json:"severity"`
}

var labelInfo = map[string]LabelInfo{
	"healthy": {
		Label:       "healthy",
		Description: "The potato plant appears healthy with no visible signs of disease. The leaf shows normal coloration and structure.",
		Treatment:   "Continue regular care and monitoring. Maintain proper watering schedule, ensure adequate nutrition, and inspect regularly for early signs of disease.",
		Severity:    SeverityHealthy,
	},
	"early_blight": {
		Label:       "early_blight",
		Description: "Early blight is caused by the fungus Alternaria solani. It typically affects older leaves first, causing dark spots with concentric rings (target-like pattern).",
		Treatment:   "Apply appropriate fungicides immediately. Remove and destroy infected leaves. Improve air circulation around plants. Practice crop rotation and avoid overhead watering. Monitor closely for spread.",
		Severity:    SeverityWarning,
	},
	"late_blight": {
		Label:       "late_blight",
		Description: "Late blight is caused by Phytophthora infestans and can rapidly destroy entire crops within days. This is the same disease that caused the Irish Potato Famine.",
		Treatment:   "URGENT: Apply fungicides immediately. Remove and destroy all infected plants. This disease spreads rapidly in cool, wet conditions. Consider emergency harvest of unaffected tubers. Implement strict quarantine measures.",
		Severity:    SeverityDanger,
	},
	NoLeafLabel: {
		Label:       NoLeafLabel,
		Description: "No potato leaf was detected in the image. Please ensure a potato leaf fills the majority of the picture area, with clear focus and lighting.",
		Treatment:   "Try capturing a clear, close-up image of only the leaf, with minimal background and good lighting.",
		Severity:    SeverityDanger,
	},
}

// Catalog returns display information for each class in order, followed by
// the no-leaf entry. Classes without a known description get an empty one.
func Catalog(classes []string) []LabelInfo {
	out := make([]LabelInfo, 0, len(classes)+1)
	for _, c := range classes {
		info, ok := labelInfo[c]
		if !ok {
			info = LabelInfo{Label: c, Severity: SeverityWarning}
		}
		out = append(out, info)
	}
	return append(out, labelInfo[NoLeafLabel])
}
