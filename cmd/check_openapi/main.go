package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	errorResponseRef = "#/components/responses/Error"
	errorSchemaRef   = "#/components/schemas/ErrorResponse"
)

var httpMethods = []string{"get", "post", "put", "patch", "delete"}

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

type openAPIDoc struct {
	Security   []map[string][]string `yaml:"security"`
	Paths      map[string]pathItem   `yaml:"paths"`
	Components struct {
		Schemas    map[string]schema    `yaml:"schemas"`
		Responses  map[string]response  `yaml:"responses"`
		Parameters map[string]parameter `yaml:"parameters"`
	} `yaml:"components"`
}

type pathItem struct {
	Parameters []parameter           `yaml:"parameters"`
	Operations map[string]*operation `yaml:",inline"`
}

type operation struct {
	OperationID string                 `yaml:"operationId"`
	Security    *[]map[string][]string `yaml:"security"`
	Parameters  []parameter            `yaml:"parameters"`
	Responses   map[string]response    `yaml:"responses"`
}

type parameter struct {
	Ref  string `yaml:"$ref"`
	Name string `yaml:"name"`
	In   string `yaml:"in"`
}

type response struct {
	Ref     string               `yaml:"$ref"`
	Content map[string]mediaType `yaml:"content"`
}

type mediaType struct {
	Schema schema `yaml:"schema"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if problems := check(doc); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p)
		}
		os.Exit(1)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	return doc, nil
}

// check returns every problem found, sorted by location.
func check(doc openAPIDoc) []string {
	var problems []string
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		problems = append(problems, err.Error())
	} else if err := validateErrorResponse(errSchema); err != nil {
		problems = append(problems, err.Error())
	}
	if r, ok := doc.Components.Responses["Error"]; !ok || !isErrorResponse(doc, r) {
		problems = append(problems, "components.responses.Error must use ErrorResponse")
	}

	seenIDs := make(map[string]string)
	for path, item := range doc.Paths {
		for _, method := range httpMethods {
			op := item.Operations[method]
			if op == nil {
				continue
			}
			where := strings.ToUpper(method) + " " + path
			problems = append(problems, checkOperation(doc, where, path, item, op, seenIDs)...)
		}
	}
	sort.Strings(problems)
	return problems
}

func checkOperation(doc openAPIDoc, where, path string, item pathItem, op *operation, seenIDs map[string]string) []string {
	var problems []string
	id := strings.TrimSpace(op.OperationID)
	switch prev, dup := seenIDs[id]; {
	case id == "":
		problems = append(problems, where+": operationId missing")
	case dup:
		problems = append(problems, fmt.Sprintf("%s: operationId %q already used by %s", where, id, prev))
	default:
		seenIDs[id] = where
	}

	declared := make(map[string]bool)
	for _, p := range append(append([]parameter(nil), item.Parameters...), op.Parameters...) {
		p = resolveParameter(doc, p)
		if p.In == "path" {
			declared[p.Name] = true
		}
	}
	for _, m := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		if !declared[m[1]] {
			problems = append(problems, fmt.Sprintf("%s: path parameter %q not declared", where, m[1]))
		}
	}

	if len(op.Responses) == 0 {
		return append(problems, where+": no responses")
	}
	for code, r := range op.Responses {
		status, err := strconv.Atoi(code)
		if err != nil || status < 400 {
			continue
		}
		if !isErrorResponse(doc, r) {
			problems = append(problems, fmt.Sprintf("%s: %s response must use ErrorResponse", where, code))
		}
	}
	if requiresAuth(doc, op) {
		if _, ok := op.Responses["401"]; !ok {
			problems = append(problems, where+": authenticated operation must document 401")
		}
	}
	return problems
}

func requiresAuth(doc openAPIDoc, op *operation) bool {
	if op.Security != nil {
		return len(*op.Security) > 0
	}
	return len(doc.Security) > 0
}

func resolveParameter(doc openAPIDoc, p parameter) parameter {
	name, ok := strings.CutPrefix(p.Ref, "#/components/parameters/")
	if !ok {
		return p
	}
	return doc.Components.Parameters[name]
}

func isErrorResponse(doc openAPIDoc, r response) bool {
	if ref := strings.TrimSpace(r.Ref); ref != "" {
		if ref != errorResponseRef {
			return false
		}
		r = doc.Components.Responses["Error"]
		if strings.TrimSpace(r.Ref) != "" {
			return false
		}
	}
	media, ok := r.Content["application/json"]
	return ok && strings.TrimSpace(media.Schema.Ref) == errorSchemaRef
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
		if prop, ok := s.Properties[field]; !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
