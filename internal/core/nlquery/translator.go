// Package nlquery answers natural-language questions about the material graph
// by having an LLM write a read-only Cypher query.
package nlquery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core/common"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/llm"
)

var (
	ErrNoLLM         = errors.New("no language model configured")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoCypher      = errors.New("model did not return a cypher query")
	ErrWriteQuery    = errors.New("generated query is not read-only")
)

const DefaultMaxRows = 100

const DefaultPrompt = `You translate questions about an industrial symbiosis graph into Cypher for Neo4j.

Schema:
(:Company {id, name, industry, location, latitude, longitude, carbon_rating, capacity})
(:WasteMaterial {id, name, category, description, toxicity_level, base_element, status})
(:Regulation {id, name, region})
(:Company)-[:PRODUCES]->(:WasteMaterial)
(:Company)-[:CAN_UPCYCLE]->(:WasteMaterial)
(:Company)-[:IS_SEEKING]->(:WasteMaterial)
(:WasteMaterial)-[:REGULATED_BY]->(:Regulation)
(:Company)-[:POTENTIAL_MATCH {score, shared_materials, shared_names, computed_at}]->(:Company)

Only read data. Never use CREATE, MERGE, SET, DELETE, REMOVE or DROP.
Respond with JSON only: {"cypher": "<query>"}

Question: %s`

var (
	fencePattern   = regexp.MustCompile("(?s)```(?i:cypher|sql)?\\s*(.*?)```")
	literalPattern = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`")
	writePattern   = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	procPattern    = regexp.MustCompile(`(?i)\bCALL\s+(dbms|apoc\.(create|merge|refactor|periodic|nodes\.delete|do|cypher)|db\.create|gds\.[\w.]*\.write)`)
	startPattern   = regexp.MustCompile(`(?im)^\s*(MATCH|OPTIONAL\s+MATCH|WITH|UNWIND|CALL|RETURN)\b`)
)

type Translator struct {
	LLM     llm.LLMClient
	Driver  driver.GraphDriver
	Prompt  string
	MaxRows int
	log     *zap.Logger
}

// NewTranslator builds a Translator. An empty prompt selects DefaultPrompt;
// the prompt must contain one %s for the question.
func NewTranslator(llmClient llm.LLMClient, d driver.GraphDriver, prompt string, log *zap.Logger) *Translator {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Translator{
		LLM:     llmClient,
		Driver:  d,
		Prompt:  prompt,
		MaxRows: DefaultMaxRows,
		log:     log,
	}
}

type Answer struct {
	Question  string                   `json:"question"`
	Cypher    string                   `json:"cypher"`
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Truncated bool                     `json:"truncated,omitempty"`
}

// Translate asks the model for a query and returns it cleaned and checked.
func (t *Translator) Translate(ctx context.Context, question string) (string, error) {
	if t.LLM == nil {
		return "", ErrNoLLM
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	resp, err := t.LLM.Generate(ctx, fmt.Sprintf(t.Prompt, question))
	if err != nil {
		return "", fmt.Errorf("failed to generate cypher: %w", err)
	}

	cypher := CleanCypher(resp)
	if cypher == "" {
		return "", ErrNoCypher
	}
	if err := CheckReadOnly(cypher); err != nil {
		t.log.Warn("rejected generated query", zap.String("cypher", cypher), zap.Error(err))
		return "", err
	}
	return cypher, nil
}

// Ask translates question and runs the resulting query.
func (t *Translator) Ask(ctx context.Context, question string) (*Answer, error) {
	cypher, err := t.Translate(ctx, question)
	if err != nil {
		return nil, err
	}

	res, err := t.Driver.ExecuteReadQuery(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("execute generated query: %w", err)
	}

	ans := &Answer{
		Question: strings.TrimSpace(question),
		Cypher:   cypher,
		Columns:  res.Keys,
		Rows:     make([]map[string]interface{}, 0, len(res.Records)),
	}
	if ans.Columns == nil {
		ans.Columns = []string{}
	}
	for i, rec := range res.Records {
		if t.MaxRows > 0 && i >= t.MaxRows {
			ans.Truncated = true
			break
		}
		row := make(map[string]interface{}, len(rec.Keys))
		for j, key := range rec.Keys {
			if j < len(rec.Values) {
				row[key] = plain(rec.Values[j])
			}
		}
		ans.Rows = append(ans.Rows, row)
	}
	return ans, nil
}

type cypherResponse struct {
	Cypher string `json:"cypher"`
}

// CleanCypher extracts a query from a model response that may be JSON, a
// fenced code block, or a query surrounded by prose.
func CleanCypher(resp string) string {
	resp = strings.TrimSpace(resp)

	if parsed, err := common.ParseJSON[cypherResponse](resp); err == nil && strings.TrimSpace(parsed.Cypher) != "" {
		return trimQuery(parsed.Cypher)
	}
	if m := fencePattern.FindStringSubmatch(resp); m != nil {
		return trimQuery(m[1])
	}
	if loc := startPattern.FindStringIndex(resp); loc != nil {
		return trimQuery(resp[loc[0]:])
	}
	return ""
}

func trimQuery(q string) string {
	q = strings.TrimSpace(q)
	q = strings.TrimSuffix(q, ";")
	return strings.TrimSpace(q)
}

// CheckReadOnly rejects queries containing write clauses or mutating
// procedures. String literals and quoted identifiers are ignored.
func CheckReadOnly(cypher string) error {
	stripped := literalPattern.ReplaceAllString(cypher, "''")
	if m := writePattern.FindString(stripped); m != "" {
		return fmt.Errorf("%w: contains %s", ErrWriteQuery, strings.ToUpper(m))
	}
	if m := procPattern.FindString(stripped); m != "" {
		return fmt.Errorf("%w: calls %s", ErrWriteQuery, m)
	}
	if strings.Contains(stripped, ";") {
		return fmt.Errorf("%w: multiple statements", ErrWriteQuery)
	}
	if !startPattern.MatchString(stripped) {
		return fmt.Errorf("%w: unrecognised statement", ErrWriteQuery)
	}
	return nil
}

// plain turns graph values into JSON-friendly maps.
func plain(v interface{}) interface{} {
	switch x := v.(type) {
	case dbtype.Node:
		out := make(map[string]interface{}, len(x.Props)+1)
		for k, p := range x.Props {
			out[k] = plain(p)
		}
		out["_labels"] = x.Labels
		return out
	case dbtype.Relationship:
		out := make(map[string]interface{}, len(x.Props)+1)
		for k, p := range x.Props {
			out[k] = plain(p)
		}
		out["_type"] = x.Type
		return out
	case dbtype.LocalDateTime:
		return x.Time()
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = plain(item)
		}
		return out
	}
	return v
}
