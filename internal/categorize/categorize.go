// Package categorize maps free-text transaction descriptions to a fixed set
// of category labels using ordered keyword rules.
package categorize

import "strings"

// Category is one of the fixed labels produced by CategoryFor.
type Category string

const (
	Income         Category = "Income"
	Housing        Category = "Housing"
	Groceries      Category = "Groceries"
	Dining         Category = "Dining"
	Transportation Category = "Transportation"
	Utilities      Category = "Utilities"
	Entertainment  Category = "Entertainment"
	Shopping       Category = "Shopping"
	Health         Category = "Health"
	Insurance      Category = "Insurance"
	Transfer       Category = "Transfer"
	Other          Category = "Other"
)

type rule struct {
	category Category
	keywords []string
}

// rules are checked in order; the first rule with a matching substring wins.
var rules = []rule{
	{Income, []string{"salary", "payroll", "direct deposit", "deposit", "paycheck", "income", "dividend", "interest paid"}},
	{Housing, []string{"rent", "mortgage", "property tax", "lease", "apartment", "hoa"}},
	{Groceries, []string{"whole foods", "costco", "kroger", "safeway", "trader joe", "aldi", "grocery", "supermarket", "publix", "wegmans"}},
	{Dining, []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "chipotle", "doordash", "uber eats", "grubhub", "pizza", "dining"}},
	{Transportation, []string{"uber", "lyft", "shell", "chevron", "exxon", "gas station", "fuel", "parking", "transit", "metro", "toll"}},
	{Utilities, []string{"electric", "water", "utility", "comcast", "verizon", "at&t", "internet", "phone"}},
	{Entertainment, []string{"netflix", "spotify", "hulu", "disney", "cinema", "movie", "theater", "concert", "steam", "playstation", "xbox"}},
	{Shopping, []string{"amazon", "target", "walmart", "best buy", "ebay", "etsy", "ikea", "shopping"}},
	{Health, []string{"pharmacy", "cvs", "walgreens", "doctor", "medical", "hospital", "dental", "clinic", "health"}},
	{Insurance, []string{"insurance", "geico", "state farm", "progressive", "allstate"}},
	{Transfer, []string{"transfer", "zelle", "venmo", "paypal", "wire"}},
}

// CategoryFor returns the label of the first rule whose keyword occurs in
// the lower-cased description, or Other.
func CategoryFor(description string) Category {
	desc := strings.ToLower(description)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(desc, kw) {
				return r.category
			}
		}
	}
	return Other
}

// Labels returns every category in rule order, with Other last.
func Labels() []Category {
	out := make([]Category, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, Other)
}

// IsLabel reports whether s is one of the fixed labels (case-sensitive).
func IsLabel(s string) bool {
	for _, c := range Labels() {
		if string(c) == s {
			return true
		}
	}
	return false
}
