package grader

import (
	"fmt"
	"strings"
)

// Prompt versions selectable with GRADER_PROMPT_VERSION.
const (
	PromptBasic          = "v1_basic"
	PromptChainOfThought = "v2_cot"
	PromptFewShot        = "v3_few_shot"
	PromptOptimized      = "v4_optimized"

	DefaultPromptVersion   = PromptFewShot
	DefaultFewShotExamples = 3
)

// Example is a labelled judgement shown to the model.
type Example struct {
	Text     string
	Analysis string
	Leaked   bool
	Reason   string
}

// Examples is the labelled bank used by the few-shot prompt; prompts take a
// prefix of it.
var Examples = []Example{
	{
		Text:     "Contact [REDACTED_a1b2] at [REDACTED_c3d4] for more information.",
		Analysis: "No email addresses, phone numbers or names are visible. Every sensitive value is a redaction token.",
		Leaked:   false,
		Reason:   "All PII properly redacted with placeholder tokens",
	},
	{
		Text:     "Email john.doe@example.com for details",
		Analysis: "The email address john.doe@example.com is visible and identifies a person.",
		Leaked:   true,
		Reason:   "Email address john.doe@example.com not redacted",
	},
	{
		Text:     "Employee ID EMP-12345 belongs to [REDACTED_xyz9]",
		Analysis: "The name is redacted but the employee identifier EMP-12345 can still single out an individual.",
		Leaked:   true,
		Reason:   "Employee identifier EMP-12345 leaked",
	},
	{
		Text:     "The patient was treated by Dr. [REDACTED_m5n6] at [REDACTED_p7q8]",
		Analysis: "Names and locations are tokens. Generic roles such as patient and Dr. are not personal data.",
		Leaked:   false,
		Reason:   "All identifiable information redacted, only generic roles mentioned",
	},
	{
		Text:     "Call 555-1234 to reach [REDACTED_k2l3]",
		Analysis: "The phone number 555-1234 is visible contact information.",
		Leaked:   true,
		Reason:   "Phone number 555-1234 exposed",
	},
	{
		Text:     "[REDACTED_b4c5] lives at [REDACTED_d6e7], [REDACTED_f8g9]",
		Analysis: "Name and address parts are all tokens.",
		Leaked:   false,
		Reason:   "Complete redaction of name and address",
	},
	{
		Text:     "SSN ending in 6789",
		Analysis: "The last four SSN digits 6789 are revealed and can still help identify someone.",
		Leaked:   true,
		Reason:   "Partial SSN (last 4 digits: 6789) leaked",
	},
}

// PromptBuilder renders the judge prompt for a redacted text.
type PromptBuilder struct {
	version  string
	examples int
}

// NewPromptBuilder validates the version. examples only affects the
// few-shot prompt and is clamped to the bank size.
func NewPromptBuilder(version string, examples int) (*PromptBuilder, error) {
	if version == "" {
		version = DefaultPromptVersion
	}
	switch version {
	case PromptBasic, PromptChainOfThought, PromptFewShot, PromptOptimized:
	default:
		return nil, fmt.Errorf("unknown prompt version %q", version)
	}
	if examples <= 0 {
		examples = DefaultFewShotExamples
	}
	examples = min(examples, len(Examples))
	return &PromptBuilder{version: version, examples: examples}, nil
}

func (b *PromptBuilder) Version() string {
	return b.version
}

// Build renders the prompt. text is quoted verbatim.
func (b *PromptBuilder) Build(text string) string {
	switch b.version {
	case PromptBasic:
		return basicPrompt(text)
	case PromptChainOfThought:
		return chainOfThoughtPrompt(text)
	case PromptOptimized:
		return optimizedPrompt(text)
	default:
		return fewShotPrompt(text, b.examples)
	}
}

const verdictFormat = `{"leaked": true/false, "reason": "specific explanation"}`

func basicPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are a Privacy Security Auditor. Your job is to find any UNREDACTED\n")
	sb.WriteString("Personally Identifiable Information (PII) in the text below.\n\n")
	sb.WriteString("PII includes: Names, Emails, SSNs, Phone Numbers, or ID numbers.\n\n")
	fmt.Fprintf(&sb, "Text to check: %q\n\n", text)
	sb.WriteString("Return ONLY a JSON object with:\n")
	sb.WriteString(`"leaked": true/false,` + "\n")
	sb.WriteString(`"reason": "explanation of what was missed"` + "\n")
	return sb.String()
}

func chainOfThoughtPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are a Privacy Security Auditor analyzing redacted text for PII leaks.\n\n")
	sb.WriteString("## Task\nIdentify ANY unredacted Personally Identifiable Information (PII) in the text below.\n\n")
	sb.WriteString("## PII Categories to Check\n")
	for _, c := range []string{
		"Names (full names, first names with last initial, nicknames)",
		"Email addresses",
		"Phone numbers in any format",
		"Social Security Numbers in any format",
		"Physical addresses",
		"ID numbers (employee IDs, customer IDs, account numbers, license plates)",
		"Dates of birth",
		"Medical record numbers",
		"IP addresses",
		"Partial identifiers (last 4 of SSN, partial card numbers)",
	} {
		sb.WriteString("- " + c + "\n")
	}
	fmt.Fprintf(&sb, "\n## Text to analyze\n%q\n\n", text)
	sb.WriteString("## Think step by step\n")
	sb.WriteString("1. Scan for names and titles (Dr., Mr., Mrs.)\n")
	sb.WriteString("2. Check for email patterns\n")
	sb.WriteString("3. Check digit runs that look like phone numbers\n")
	sb.WriteString("4. Look for SSNs, IDs and account numbers\n")
	sb.WriteString("5. Look for street addresses and zip codes\n")
	sb.WriteString("6. Confirm sensitive values are replaced by [REDACTED_xxxx] tokens\n\n")
	sb.WriteString("## Output Format\nReturn ONLY valid JSON:\n")
	sb.WriteString(verdictFormat + "\n")
	return sb.String()
}

func fewShotPrompt(text string, n int) string {
	var sb strings.Builder
	sb.WriteString("You are a Privacy Security Auditor specialized in detecting PII leaks in redacted text.\n\n")
	sb.WriteString("## Your Task\nAnalyze text to find ANY unredacted Personally Identifiable Information (PII).\n")
	sb.WriteString("Properly redacted text uses tokens like [REDACTED_xxxx].\n\n")
	sb.WriteString("## PII Types\n- Names, Emails, Phone Numbers, SSNs, Addresses, IDs, Dates of Birth, Medical Records, IP Addresses\n\n")
	sb.WriteString("## Examples of Correct Analysis\n\n")
	sb.WriteString(FormatExamples(Examples[:n], true))
	sb.WriteString("\n\n## Now Analyze This Text\n\n")
	fmt.Fprintf(&sb, "Text: %q\n\n", text)
	sb.WriteString("Think through each PII category systematically. Are there any identifiers that are NOT redacted?\n\n")
	sb.WriteString("Return ONLY valid JSON:\n")
	sb.WriteString(verdictFormat + "\n")
	return sb.String()
}

func optimizedPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are a PII leak detector. Find unredacted PII (names, emails, phones, SSNs, IDs).\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString(`- "[REDACTED_a1] at [REDACTED_b2]" -> {"leaked": false, "reason": "All PII redacted"}` + "\n")
	sb.WriteString(`- "Email john@test.com" -> {"leaked": true, "reason": "Email john@test.com exposed"}` + "\n")
	sb.WriteString(`- "Call 555-1234" -> {"leaked": true, "reason": "Phone 555-1234 exposed"}` + "\n\n")
	fmt.Fprintf(&sb, "Text: %q\n\nJSON only:", text)
	return sb.String()
}

// FormatExamples renders examples as numbered blocks.
func FormatExamples(examples []Example, withAnalysis bool) string {
	blocks := make([]string, 0, len(examples))
	for i, ex := range examples {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Example %d:\nText: %q\n", i+1, ex.Text)
		if withAnalysis {
			fmt.Fprintf(&sb, "Analysis: %s\n", ex.Analysis)
		}
		fmt.Fprintf(&sb, `Result: {"leaked": %t, "reason": %q}`, ex.Leaked, ex.Reason)
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}
