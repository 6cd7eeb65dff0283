package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/datasets/internal/core"
)

// Tag bounds for generated metadata. Reviewers may later extend tags up
// to core.MaxTags.
const (
	MinTags = 3
	MaxTags = 10

	minDescriptionLen = 10
)

const systemPrompt = `You are a bilingual (English and Arabic) metadata generator for datasets. Analyze the provided dataset content and generate comprehensive metadata in both languages.

The input is provided in an XML-like format:
<filename>original file name of the dataset</filename>
<data>column information including names, data types and sample values</data>

Guidelines:
1. Use the file name and column data to write natural, descriptive titles.
2. Write detailed descriptions of the dataset's purpose, contents and potential uses.
3. Suggest between 3 and 10 relevant tags for discovery.
4. Categorize the dataset with a category and a subcategory.
5. Provide every text field in both English and Arabic.
6. Keep tags in English only.
7. Use proper Arabic grammar and vocabulary.

Example output:
{
  "title_en": "UAE Economic Indicators 2020-2023",
  "title_ar": "مؤشرات اقتصاد الإمارات 2020-2023",
  "description_en": "Dataset covering key economic indicators of the UAE including GDP, inflation rates and employment statistics from 2020 to 2023.",
  "description_ar": "مجموعة بيانات تغطي المؤشرات الاقتصادية الرئيسية لدولة الإمارات بما في ذلك الناتج المحلي الإجمالي ومعدلات التضخم وإحصاءات التوظيف من 2020 إلى 2023.",
  "tags": ["economics", "uae", "gdp", "employment", "financial-indicators"],
  "category_en": "Economics",
  "category_ar": "الاقتصاد",
  "subcategory_en": "Financial Indicators",
  "subcategory_ar": "المؤشرات المالية"
}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

var metadataFields = []string{
	"title_en", "title_ar",
	"description_en", "description_ar",
	"tags",
	"category_en", "category_ar",
	"subcategory_en", "subcategory_ar",
}

func metadataSchema() map[string]any {
	props := make(map[string]any, len(metadataFields))
	for _, f := range metadataFields {
		props[f] = map[string]any{"type": "string"}
	}
	props["tags"] = map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             metadataFields,
		"additionalProperties": false,
	}
}

func (c *Client) newRequest(content string) completionRequest {
	return completionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   "dataset_metadata",
				Strict: true,
				Schema: metadataSchema(),
			},
		},
	}
}

func decodeMetadata(raw []byte) (core.Metadata, error) {
	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.Metadata{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.Metadata{}, errors.New("completion response has no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return core.Metadata{}, fmt.Errorf("completion is empty (finish reason %q)", resp.Choices[0].FinishReason)
	}

	var md core.Metadata
	if err := json.Unmarshal([]byte(content), &md); err != nil {
		return core.Metadata{}, fmt.Errorf("decode generated metadata: %w", err)
	}
	return md, nil
}

// Validate checks generated metadata: all nine fields present,
// descriptions of at least 10 characters and 3 to 10 non-blank tags.
func Validate(md core.Metadata) error {
	var problems []string

	for _, f := range []struct {
		name  string
		value string
		min   int
	}{
		{"title_en", md.TitleEN, 1},
		{"title_ar", md.TitleAR, 1},
		{"description_en", md.DescriptionEN, minDescriptionLen},
		{"description_ar", md.DescriptionAR, minDescriptionLen},
		{"category_en", md.CategoryEN, 1},
		{"category_ar", md.CategoryAR, 1},
		{"subcategory_en", md.SubcategoryEN, 1},
		{"subcategory_ar", md.SubcategoryAR, 1},
	} {
		n := utf8.RuneCountInString(strings.TrimSpace(f.value))
		switch {
		case n == 0:
			problems = append(problems, f.name+" is empty")
		case n < f.min:
			problems = append(problems, fmt.Sprintf("%s is shorter than %d characters", f.name, f.min))
		}
	}

	if n := len(md.Tags); n < MinTags || n > MaxTags {
		problems = append(problems, fmt.Sprintf("tags has %d entries, want %d to %d", n, MinTags, MaxTags))
	}
	for i, tag := range md.Tags {
		if strings.TrimSpace(tag) == "" {
			problems = append(problems, fmt.Sprintf("tags[%d] is empty", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid generated metadata: %s", strings.Join(problems, "; "))
	}
	return nil
}
