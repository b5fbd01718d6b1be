package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"salesrep/llm"
	"salesrep/llm/corpus"
	"salesrep/llm/knowledge"
)

// FallbackLine is what the assistant says when the material does not cover a question.
const FallbackLine = "I'd check with our sales team directly at sales@hcmakers.com just to be sure."

// salesRepPrompt defines the persona, the product rules and the image protocol.
const salesRepPrompt = `You are a Senior Sales Representative for "Nuestro Queso" (Hispanic Cheese Makers), answering customers of {{.Site}}.

YOUR GOAL: Educate the buyer and recommend the right cheese using the website content, the attached product documents and the reference tables below.

RULES:
1. Answer from the material below and the attached documents. {{.FactsRule}}
2. PRODUCT MATCHING:
   - MELTING: recommend Oaxaca, the "Mexican String Cheese".
   - GRILLING or FRYING: recommend Panela or Queso Blanco and mention they do not melt.
   - TOPPING or SALTY: recommend Cotija, the "Parmesan of Mexico".
3. Mention specific awards (like "Gold Medal Winner") whenever the material mentions them.
4. Be precise about pack sizes, ingredients and allergens.
5. Tone: helpful, professional and proud of the quality (SQF Level 3 plant).
6. If the information is not in the material, say: "{{.Fallback}}"
7. IMAGES: when the customer asks to see something, or a picture clearly helps, add exactly one line
   {{.Marker}}
   naming a label from KNOWN IMAGES or a URL from the image list. Never invent URLs. Otherwise add no marker.
8. Do not use code blocks.

KNOWN IMAGES:
{{.Priority}}

OTHER IMAGES:
{{.Catalog}}

{{.FactsLabel}} NUTRITION FACTS:
{{.Nutrition}}

CONTACTS:
{{.Contacts}}

WEBSITE CONTENT:
{{.Pages}}`

const (
	verifiedRule   = "VERIFIED tables override anything else."
	unverifiedRule = "The UNVERIFIED REFERENCE tables never override the website content or the attached documents; when they disagree, trust the documents."
)

// PromptBuilder renders the model input for one question.
type PromptBuilder struct {
	site     string
	template prompt.ChatTemplate
}

func NewPromptBuilder(site string) *PromptBuilder {
	return &PromptBuilder{
		site:     site,
		template: prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(salesRepPrompt)),
	}
}

// Build returns [system, user]. The user message carries one file part per ACTIVE
// document, site documents first and then the customer's uploads, followed by the
// question text. Other documents are never attached.
func (p *PromptBuilder) Build(ctx context.Context, snap *corpus.Snapshot, uploads []llm.KnowledgeDocument, question string) ([]*schema.Message, error) {
	vars := map[string]any{
		"Site":       p.site,
		"Fallback":   FallbackLine,
		"Marker":     MarkerFor("LABEL or URL"),
		"Priority":   "(none)",
		"Catalog":    "(none)",
		"Nutrition":  "(none)",
		"Contacts":   "(none)",
		"Pages":      "(none)",
		"FactsRule":  unverifiedRule,
		"FactsLabel": "UNVERIFIED REFERENCE",
	}
	if snap != nil {
		vars["Priority"] = snap.Catalog.PriorityText()
		vars["Catalog"] = snap.Catalog.Text()
		if snap.Facts != nil {
			vars["Nutrition"] = snap.Facts.NutritionTable()
			vars["Contacts"] = snap.Facts.ContactTable()
			vars["FactsLabel"] = snap.Facts.Label()
			if snap.Facts.Verified {
				vars["FactsRule"] = verifiedRule
			}
		}
		if pages := snap.PageContext(); pages != "" {
			vars["Pages"] = pages
		}
	}

	msgs, err := p.template.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	docs := append(snap.ActiveDocuments(), knowledge.Active(uploads)...)

	var parts []schema.MessageInputPart
	for _, doc := range docs {
		uri := doc.Remote.URI
		parts = append(parts, schema.MessageInputPart{
			Type: schema.ChatMessagePartTypeFileURL,
			File: &schema.MessageInputFile{
				MessagePartCommon: schema.MessagePartCommon{
					URL:      &uri,
					MIMEType: doc.Remote.MIMEType,
				},
				Name: doc.Name,
			},
		})
	}
	parts = append(parts, schema.MessageInputPart{
		Type: schema.ChatMessagePartTypeText,
		Text: question,
	})

	user := &schema.Message{
		Role:                  schema.User,
		UserInputMultiContent: parts,
	}
	return append(msgs, user), nil
}
