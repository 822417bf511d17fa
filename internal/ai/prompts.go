package ai

import "google.golang.org/genai"

const extractionPrompt = "Extract invoice details: vendor name, total amount, currency (ISO 4217 code), " +
	"date (YYYY-MM-DD), and a logical expense category.\n" +
	"If it's a multi-page document, use the summary from the first page or the overall total.\n" +
	"Return ONLY valid raw JSON. Do NOT wrap the response in code fences."

const analysisPrompt = "Analyze these business expenses and identify potential savings or duplicate subscriptions.\n" +
	"Return a list of identified risks or saving opportunities. Make actions specific " +
	"(e.g. 'Switch to Annual', 'Negotiate Lease'). estimatedSaving is a monthly amount.\n" +
	"Expenses:\n"

const subscriptionPrompt = "Review this list of invoices and identify which ones represent recurring monthly " +
	"or yearly subscriptions.\n" +
	"Group them by vendor. Determine the typical monthly cost and estimate the next renewal date " +
	"based on the latest invoice date + 30 days.\n" +
	"Invoices:\n"

// extractionSchema mirrors the fields of an ExtractedExpense.
var extractionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"vendorName": {Type: genai.TypeString},
		"amount":     {Type: genai.TypeNumber},
		"currency":   {Type: genai.TypeString},
		"date":       {Type: genai.TypeString},
		"category":   {Type: genai.TypeString},
	},
	Required: []string{"vendorName", "amount", "currency", "date", "category"},
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"vendorName":      {Type: genai.TypeString},
			"reason":          {Type: genai.TypeString},
			"estimatedSaving": {Type: genai.TypeNumber},
			"action":          {Type: genai.TypeString},
		},
		Required: []string{"vendorName", "reason", "estimatedSaving", "action"},
	},
}

var subscriptionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"vendorName":  {Type: genai.TypeString},
			"monthlyCost": {Type: genai.TypeNumber},
			"renewalDate": {Type: genai.TypeString, Description: "Estimated next billing date YYYY-MM-DD"},
			"isFlagged":   {Type: genai.TypeBoolean},
			"reason":      {Type: genai.TypeString, Description: "Reason why it might be a saving area, if any."},
		},
		Required: []string{"vendorName", "monthlyCost", "renewalDate", "isFlagged"},
	},
}
