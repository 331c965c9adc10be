// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	CatalogNotFoundId Id = iota + 1
	CatalogParseErrorId
	CommandNotFoundId
	ComponentUnreachableId
	ConfigLoadFailedId
	CompositeCycleId
	AgentStartFailedId
)

type (
	// Id identifies a known failure class.
	Id int

	// MarkdownMsg is help text rendered with glamour.
	MarkdownMsg string

	// HttpLink is a documentation or external reference.
	HttpLink string

	// Issue is the long-form help attached to a failure class.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render formats the issue for the terminal. stylePath is a glamour style
// name ("dark", "light", "notty") or a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	catalogNotFoundIssue = &Issue{
		id: CatalogNotFoundId,
		mdMsg: `
# No command catalog found!

devtask reads commands from a flattened devfile (YAML, JSON or TOML).

## Things you can try:
- Point devtask at the file explicitly:
~~~
$ devtask --catalog ./devfile.flattened.yaml list
~~~
- Or set ` + "`catalog: path:`" + ` in your config file:
~~~cue
catalog: path: "/projects/.devfile.flattened.yaml"
~~~`,
		docLinks: []HttpLink{"https://devfile.io/docs/2.2.0/adding-commands"},
	}

	catalogParseErrorIssue = &Issue{
		id: CatalogParseErrorId,
		mdMsg: `
# The command catalog could not be parsed!

The file must contain a top-level ` + "`commands`" + ` list.

## Example:
~~~yaml
commands:
  - id: build
    exec:
      component: tools
      commandLine: make build
  - id: ci
    composite:
      commands: [build, test]
      parallel: false
~~~`,
	}

	commandNotFoundIssue = &Issue{
		id: CommandNotFoundId,
		mdMsg: `
# Command not found!

The requested id is not in the catalog. Imported commands and the
` + "`init-ssh-agent-command-N`" + ` bootstrap commands are never runnable.

## Things you can try:
- List runnable commands:
~~~
$ devtask list
~~~`,
	}

	componentUnreachableIssue = &Issue{
		id: ComponentUnreachableId,
		mdMsg: `
# A component could not be reached!

Leaf commands run on the component named in their exec block.

## Things you can try:
- Start an agent inside the component:
~~~
$ devtask agent serve --port 2222
~~~
- Declare it in your config file:
~~~cue
components: tools: {
	address: "tools:2222"
	token:   "..."
}
~~~
- Or run everything locally with ` + "`backend: default: \"shell\"`" + `.`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Show the effective configuration:
~~~
$ devtask config show
~~~
- Recreate a default file:
~~~
$ devtask config init
~~~`,
	}

	compositeCycleIssue = &Issue{
		id: CompositeCycleId,
		mdMsg: `
# A composite command references itself!

A composite may not expand itself, directly or through other composites.
The affected branch fails; sibling branches still run.

## Things you can try:
- Find every cycle in the catalog:
~~~
$ devtask validate
~~~`,
	}

	agentStartFailedIssue = &Issue{
		id: AgentStartFailedId,
		mdMsg: `
# The component agent failed to start!

## Things you can try:
- Pick another port with ` + "`--port`" + `, or 0 for any free port
- Check that the host address can be bound`,
	}

	issues = map[Id]*Issue{
		catalogNotFoundIssue.Id():      catalogNotFoundIssue,
		catalogParseErrorIssue.Id():    catalogParseErrorIssue,
		commandNotFoundIssue.Id():      commandNotFoundIssue,
		componentUnreachableIssue.Id(): componentUnreachableIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		compositeCycleIssue.Id():       compositeCycleIssue,
		agentStartFailedIssue.Id():     agentStartFailedIssue,
	}
)

// Values returns every known issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
