// Package router maps routing tags to remote collections. A tag rule
// overrides the default collection derived from document structure.
package router

// Rule binds one tag to one remote collection.
type Rule struct {
	Tag            string `mapstructure:"tag" json:"tag"`
	CollectionID   string `mapstructure:"list_id" json:"list_id"`
	CollectionName string `mapstructure:"list_name" json:"list_name"`
}

// Router holds an ordered rule list. At most one rule matches a task:
// the first exact tag match wins.
type Router struct {
	rules []Rule
}

// New builds a router over the configured rules.
func New(rules []Rule) *Router {
	return &Router{rules: rules}
}

// Resolve returns the first rule whose tag exactly matches.
func (r *Router) Resolve(tag string) (Rule, bool) {
	if tag == "" {
		return Rule{}, false
	}
	for _, rule := range r.rules {
		if rule.Tag == tag {
			return rule, true
		}
	}
	return Rule{}, false
}

// TagFor returns the tag routed to the given collection, used to
// re-attach tags on pulled tasks. First match wins, mirroring Resolve.
func (r *Router) TagFor(collectionID string) (string, bool) {
	for _, rule := range r.rules {
		if rule.CollectionID == collectionID {
			return rule.Tag, true
		}
	}
	return "", false
}

// Tags returns every configured tag name, in rule order. The parser uses
// this to decide which document tags it may extract.
func (r *Router) Tags() []string {
	tags := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		tags = append(tags, rule.Tag)
	}
	return tags
}
