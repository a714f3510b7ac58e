package parser

// Framework names reported by Frameworks.
const (
	FrameworkReact     = "react"
	FrameworkNext      = "nextjs"
	FrameworkVue       = "vue"
	FrameworkNuxt      = "nuxt"
	FrameworkAngular   = "angular"
	FrameworkAngularJS = "angularjs"
	FrameworkEmber     = "ember"
	FrameworkSvelte    = "svelte"
)

// frameworkMarkers are DOM markers left by client-side frameworks in the
// rendered page. A framework is reported when any of its selectors match.
var frameworkMarkers = []struct {
	name      string
	selectors []string
}{
	{FrameworkNext, []string{"#__next", `script#__NEXT_DATA__`, `script[src*="/_next/"]`}},
	{FrameworkReact, []string{"[data-reactroot]", "[data-reactid]"}},
	{FrameworkNuxt, []string{"#__nuxt", `script[src*="/_nuxt/"]`}},
	{FrameworkVue, []string{"[data-v-app]", "[data-server-rendered]"}},
	{FrameworkAngular, []string{"[ng-version]", "app-root"}},
	{FrameworkAngularJS, []string{"[ng-app]", "[data-ng-app]", "[ng-controller]", "[ng-view]"}},
	{FrameworkEmber, []string{".ember-view", "[data-ember-action]", `[id^="ember"]`}},
	{FrameworkSvelte, []string{`[class*="svelte-"]`}},
}

// Frameworks lists the client-side frameworks whose markers appear in the
// document, in a fixed order. Next.js implies React and Nuxt implies Vue.
func (d *Document) Frameworks() []string {
	found := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !found[name] {
			found[name] = true
			names = append(names, name)
		}
	}

	for _, m := range frameworkMarkers {
		for _, sel := range m.selectors {
			if d.doc.Find(sel).Length() > 0 {
				add(m.name)
				switch m.name {
				case FrameworkNext:
					add(FrameworkReact)
				case FrameworkNuxt:
					add(FrameworkVue)
				}
				break
			}
		}
	}

	// Vue scoped styles add data-v-<hash> attributes, which no selector
	// can match by prefix.
	if !found[FrameworkVue] && d.hasAttrPrefix("data-v-") {
		add(FrameworkVue)
	}
	return names
}

func (d *Document) hasAttrPrefix(prefix string) bool {
	for _, n := range d.doc.Find("*").Nodes {
		for _, a := range n.Attr {
			if len(a.Key) > len(prefix) && a.Key[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}
