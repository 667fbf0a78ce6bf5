package names

// DefaultOptions returns the built-in normalization tables.
func DefaultOptions() Options {
	return Options{
		Nicknames: map[string][]string{
			"alexander":   {"alex", "xander", "sasha"},
			"alexandra":   {"alex", "lexi", "sandra"},
			"andrew":      {"andy", "drew"},
			"anthony":     {"tony"},
			"benjamin":    {"ben", "benny"},
			"catherine":   {"cathy", "kate", "katie"},
			"charles":     {"charlie", "chuck", "chas"},
			"christopher": {"chris", "kit"},
			"christine":   {"chris", "tina"},
			"daniel":      {"dan", "danny"},
			"david":       {"dave", "davey"},
			"deborah":     {"deb", "debbie"},
			"edward":      {"ed", "eddie", "ted", "ned"},
			"elizabeth":   {"liz", "beth", "betsy", "eliza", "lisa"},
			"frederick":   {"fred", "freddie"},
			"gregory":     {"greg"},
			"james":       {"jim", "jimmy", "jamie"},
			"jeffrey":     {"jeff"},
			"jennifer":    {"jen", "jenny"},
			"john":        {"jack", "johnny", "jon"},
			"jonathan":    {"jon", "jonny"},
			"joseph":      {"joe", "joey"},
			"katherine":   {"kate", "katie", "kathy", "kat"},
			"kenneth":     {"ken", "kenny"},
			"lawrence":    {"larry"},
			"margaret":    {"maggie", "meg", "peggy"},
			"matthew":     {"matt", "matty"},
			"michael":     {"mike", "mick", "mikey"},
			"nicholas":    {"nick", "nicky"},
			"patricia":    {"pat", "patty", "trish"},
			"patrick":     {"pat", "paddy"},
			"peter":       {"pete"},
			"rebecca":     {"becky", "becca"},
			"richard":     {"rick", "rich", "dick", "richie"},
			"robert":      {"rob", "bob", "bobby", "robbie", "bert"},
			"ronald":      {"ron", "ronnie"},
			"samuel":      {"sam", "sammy"},
			"stephen":     {"steve", "stevie"},
			"steven":      {"steve", "stevie"},
			"susan":       {"sue", "susie"},
			"thomas":      {"tom", "tommy"},
			"timothy":     {"tim", "timmy"},
			"victoria":    {"vicky", "tori"},
			"william":     {"will", "bill", "billy", "liam", "willy"},
			"zachary":     {"zach", "zack"},
		},
		OrgSuffixes: []string{
			"inc", "incorporated", "llc", "ltd", "limited", "llp", "lp", "plc",
			"gmbh", "ag", "sa", "sarl", "sas", "bv", "nv", "co", "corp",
			"corporation", "company", "partners", "holdings", "capital",
		},
		Honorifics: []string{
			"mr", "mrs", "ms", "miss", "mx", "dr", "prof", "sir", "dame", "lord",
		},
		PersonSuffixes: []string{
			"jr", "sr", "ii", "iii", "iv", "phd", "md", "cfa", "cpa", "esq", "mba",
		},
	}
}

// DefaultOrgKeywords are the tokens that mark a bare name as an organization.
var DefaultOrgKeywords = []string{
	"inc", "llc", "ltd", "llp", "lp", "plc", "gmbh", "sarl", "bv", "co", "corp",
	"corporation", "company", "capital", "partners", "holdings", "group",
	"ventures", "foundation", "fund", "funds", "trust", "management",
	"advisors", "advisory", "investments", "investment", "asset", "assets",
	"equity", "family", "office", "bank", "securities", "associates",
	"endowment", "university", "pension", "insurance", "global",
	"international", "and", "the", "of",
}
