package prompt

// Template names.
const (
	Classify         = "classify.md"
	Summarize        = "summarize.md"
	DuplicateComment = "duplicate-comment.md"
	AnalysisComment  = "analysis-comment.md"
)

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	Classify:         classifyTemplate,
	Summarize:        summarizeTemplate,
	DuplicateComment: duplicateCommentTemplate,
	AnalysisComment:  analysisCommentTemplate,
}

const classifyTemplate = `Analyze the following GitHub issue and classify its severity.
The severity levels are:
- Critical: System down, data loss, security vulnerability.
- High: Major functionality broken, significant performance degradation.
- Medium: Minor bugs with workarounds, important feature requests.
- Low: Cosmetic issues, typos, documentation updates.
- Info: Questions, discussions, feedback.

Example 1:
Title: "Server is down, 500 errors everywhere"
Body: "Our main production server is not responding, and all API calls are failing."
Severity: Critical

Example 2:
Title: "User profile picture upload is failing"
Body: "When a user tries to upload a new avatar, they get an error. The old avatar still works."
Severity: High

Example 3:
Title: "Typo in the main page footer"
Body: "The copyright year is wrong in the footer text."
Severity: Low

Example 4:
Title: "How to configure SSL certificates?"
Body: "I'm trying to set up SSL for our domain. Can someone provide guidance on the best practices?"
Severity: Info

Issue to classify:
Title: "{{issue_title}}"
Body: "{{issue_body}}"

Respond with exactly one word: Critical, High, Medium, Low, or Info.
Severity:
`

const summarizeTemplate = `Summarize the following GitHub issue into a single, concise sentence for a technical audience.

Title: "{{issue_title}}"
Body: "{{issue_body}}"

Provide only the summary sentence, no additional text.
`

const duplicateCommentTemplate = `This issue appears to be a duplicate of #{{duplicate_of}} (Similarity: {{similarity}}).

Please review the original issue and add any additional information there if needed. This issue will be closed to avoid fragmentation.
`

const analysisCommentTemplate = `## {{severity_marker}} AI Triage Analysis

**Severity Classification:** {{severity}}

**Analysis Summary:**
{{summary}}

**Recommended Actions:**
- Issue has been classified as **{{severity}}** priority
- Appropriate severity label has been applied
- Issue details have been recorded in the knowledge base
{{#if reviewer}}
Reviewed by {{reviewer}}.
{{/if}}
*This analysis was generated by AI and approved by a human triager.*`
