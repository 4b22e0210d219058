package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

const bomPrompt = `Analyze this technical drawing/schematic.
Focus on extracting the Bill of Materials (BOM) table if present.
Identify all components listed.
Return a JSON object with a key 'components'.
Each component object MUST have:
- 'part_number' (string, from 'Part Number' column if available, else null)
- 'name' (string, from 'Description' column or label)
- 'count' (number, from 'Qty' column. If "AR" or unspecified, estimate or use 1)
- 'details' (string, extra info)
Output ONLY valid JSON.`

// Component is one extracted bill-of-materials entry
type Component struct {
	PartNumber string    `json:"part_number"`
	Name       string    `json:"name"`
	Count      FlexCount `json:"count"`
	Details    string    `json:"details"`
}

// FlexCount is a quantity that may arrive as a number or a string such as
// "2 pcs" or "AR"; anything without digits parses to 1.
type FlexCount float64

var countDigits = regexp.MustCompile(`\d+(\.\d+)?`)

// UnmarshalJSON implements flexible quantity parsing
func (c *FlexCount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = 1
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = FlexCount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if m := countDigits.FindString(s); m != "" {
			var v float64
			fmt.Sscanf(m, "%f", &v)
			*c = FlexCount(v)
			return nil
		}
		*c = 1
		return nil
	}
	*c = 1
	return nil
}

// Analysis is the result of a design-spec extraction
type Analysis struct {
	Components []Component `json:"components"`
	RawText    string      `json:"raw_text,omitempty"`
	Warning    string      `json:"warning,omitempty"`
}

// Client calls the Gemini generateContent API to extract a BOM from a
// design-spec image. With no API key it returns a fixed mock analysis so the
// rest of the flow stays exercisable.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Gemini client; apiKey may be empty
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// AnalyzeSpec extracts the component list from the design-spec image at path
func (c *Client) AnalyzeSpec(ctx context.Context, imagePath string) (*Analysis, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec image: %w", err)
	}

	if c.apiKey == "" {
		return mockAnalysis(), nil
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(imageData),
				}},
				{Text: bomPrompt},
			},
		}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/gemini-1.5-flash:generateContent?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vlm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vlm request failed: status %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("failed to decode vlm response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("vlm returned no candidates")
	}

	text := stripCodeFences(gen.Candidates[0].Content.Parts[0].Text)

	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return &Analysis{RawText: text, Warning: "failed to parse model reply as JSON"}, nil
	}
	analysis.RawText = text
	return &analysis, nil
}

// stripCodeFences removes a surrounding markdown code block, if any
func stripCodeFences(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	return strings.TrimSpace(text)
}

func mockAnalysis() *Analysis {
	return &Analysis{
		Warning: "No API key configured. Returning mock data.",
		Components: []Component{
			{Name: "M12 Connector (Male)", Count: 2, Details: "5-pin, straight"},
			{Name: "PVC Cable Jacket", Count: 1, Details: "Black, 2m"},
			{Name: "Copper Wire", Count: 5, Details: "24AWG, stranded"},
			{Name: "Shielding", Count: 1, Details: "Braided copper"},
			{Name: "Strain Relief", Count: 2, Details: "Black rubber"},
		},
		RawText: "Mock analysis result.",
	}
}
