package strategy

import (
	"strings"
	"text/template"
)

var (
	knowledgeTmpl = template.Must(template.New("knowledge").Funcs(template.FuncMap{"join": strings.Join}).Parse(
		"# {{.Description}}\n\n## Features\n{{join .Features \", \"}}\n\n## Complete code\n{{.Code}}\n\n" +
			"## How to run\n1. Save the code to a file\n2. Install the required libraries\n3. Run it to start the application"))

	skeletonTmpl = template.Must(template.New("skeleton").Parse(
		"# {{.}}\n\n## Basic structure\n```python\ndef main():\n    print(\"Starting {{.}}\")\n    # add the implementation\n    pass\n\n\n" +
			"if __name__ == \"__main__\":\n    main()\n```\n\n## Next steps\n1. Import the required libraries\n2. Design the class structure\n" +
			"3. Add error handling\n4. Write test cases"))

	heuristicTmpl = template.Must(template.New("heuristic").Parse(
		"# Heuristic solution outline\n\n## Task analysis\n{{.}}\n\n## Reasoning steps\n1. Break down the requirements\n" +
			"2. Design the architecture\n3. Plan the implementation\n4. Test and debug\n\n## Recommended approach\n" +
			"- Incremental development\n- Continuous integration\n- Collect user feedback"))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
