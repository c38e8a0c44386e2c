package gate

import "regexp"

// Stage names the step of the evaluation that produced a decision.
type Stage string

const (
	StageDocumentPattern       Stage = "document_pattern"
	StageConversationalPattern Stage = "conversational_pattern"
	StageHeuristic             Stage = "heuristic"
	StageDisabled              Stage = "disabled"
)

// Rule is a tagged predicate: when Pattern matches, the query is decided
// with UseRetrieval at the given Confidence.
type Rule struct {
	Name         string
	Stage        Stage
	Pattern      *regexp.Regexp
	UseRetrieval bool
	Confidence   float64
}

func (r Rule) Match(query string) bool { return r.Pattern.MatchString(query) }

func documentRule(name, expr string) Rule {
	return Rule{Name: name, Stage: StageDocumentPattern, Pattern: regexp.MustCompile(`(?i)` + expr), UseRetrieval: true, Confidence: 0.9}
}

func conversationalRule(name, expr string) Rule {
	return Rule{Name: name, Stage: StageConversationalPattern, Pattern: regexp.MustCompile(`(?i)` + expr), UseRetrieval: false, Confidence: 0.8}
}

// DefaultRules lists document lookups first, then conversational and meta
// queries. Evaluation stops at the first match. Patterns search anywhere in
// the query unless anchored with ^.
var DefaultRules = []Rule{
	documentRule("document_reference", `(in|within|from|according to|based on|referring to|mention(ed)? (in|by))(\s+the)?\s+(document|pdf|text|file)`),
	documentRule("what_does_say", `what (does|do|did) .{3,30} (say|state|mention|explain|describe|mean|discuss)`),
	documentRule("where_in", `where (in|within) .{3,30} (is|are|was|were) .{3,30} (mention|discuss|state|list|explain)`),
	documentRule("how_many_in", `how (many|much) .{3,30} (mention|list|have|has|contain|include)`),
	documentRule("who_according_to", `who (is|are|was|were) .{3,50} (according to|in|within|mention)`),
	documentRule("when_according_to", `when (did|was|were|is|are) .{3,50} (according to|in|within|mention)`),
	documentRule("which_section", `which (section|part|paragraph|page|chapter|area)`),
	documentRule("tell_me_about_in", `tell me about .{3,50} (in|from|within) .{3,50}`),
	documentRule("list_mentioned", `list .{3,50} (mention|discuss|state|describe)`),
	documentRule("summarize", `summarize .{3,50} (section|part|chapter|document|pdf|text)`),
	documentRule("what_is_about", `what (is|are) .{3,50} (about|regarding)`),
	documentRule("explain_concept", `explain .{3,50} (concept|idea|topic|subject|theory)`),
	documentRule("describe_in", `describe .{3,50} (in|from|within|about)`),
	documentRule("extract_from", `extract .{3,50} (from|in)`),
	documentRule("find_in", `find .{3,50} (in|within|from)`),

	conversationalRule("greeting", `^(hi|hello|hey|greetings|howdy)`),
	conversationalRule("how_are_you", `^how (are|is|was|were) you`),
	conversationalRule("about_assistant", `^what (are|is) your`),
	conversationalRule("thanks", `(thank|thanks)`),
	conversationalRule("farewell", `^(bye|goodbye|see you)`),
	conversationalRule("help", `^(help|assist)`),
	conversationalRule("who_made_you", `^who (created|made|built|developed) you`),
	conversationalRule("can_you_help", `can you help`),
	conversationalRule("about_yourself", `tell me about yourself`),
	conversationalRule("capabilities", `what can you do`),
	conversationalRule("usage", `how do (I|we) use`),
	conversationalRule("what_is_rag", `what (is|are) RAG`),
	conversationalRule("how_you_work", `explain how (you|this) work`),
}
