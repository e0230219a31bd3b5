// internal/assembler/images.go
package assembler

import "encoding/base64"

// injectImages builds the provider-specific image block list for a request's
// image attachments, per spec.md §4.2's per-provider injection table. Text
// attachments are handled separately in composeSections/gatherPhase1.
func (a *Assembler) injectImages(req Request) []map[string]interface{} {
	var images []Attachment
	for _, att := range req.Attachments {
		if len(att.Data) > 0 {
			images = append(images, att)
		}
	}
	if len(images) == 0 {
		return nil
	}

	switch req.Provider {
	case ProviderOpenAI, ProviderLMStudio:
		out := make([]map[string]interface{}, 0, len(images))
		for _, img := range images {
			dataURI := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
			out = append(out, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": dataURI},
			})
		}
		return out
	case ProviderAnthropic:
		out := make([]map[string]interface{}, 0, len(images))
		for _, img := range images {
			out = append(out, map[string]interface{}{
				"type": "image",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": img.MimeType,
					"data":       base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		return out
	case ProviderOllama:
		encoded := make([]string, 0, len(images))
		for _, img := range images {
			encoded = append(encoded, base64.StdEncoding.EncodeToString(img.Data))
		}
		return []map[string]interface{}{{"images": encoded}}
	default:
		// Text-only fallback: no inline image support, note it for the prompt.
		return []map[string]interface{}{{
			"type": "text",
			"text": "[image attachment(s) omitted: provider has no vision support]",
		}}
	}
}
