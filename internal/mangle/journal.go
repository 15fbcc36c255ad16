// Package mangle keeps a deductive journal of plan executions. Every run,
// step and verdict becomes a fact; rules in the embedded schema derive
// failed steps, unhealthy runs and validation gaps from them.
package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"panelqa-runner/internal/config"
)

//go:embed schema.mg
var defaultSchema []byte

// Fact is one journal entry.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult binds the variables of a query to values.
type QueryResult map[string]interface{}

// Journal wraps the Mangle store with a bounded fact buffer.
type Journal struct {
	cfg config.MangleConfig
	log *zap.Logger

	mu           sync.RWMutex
	schemaLoaded bool
	programInfo  *analysis.ProgramInfo
	store        factstore.FactStore

	// buffer for temporal lookups, trimmed to FactBufferLimit
	facts []Fact
	index map[string][]int
}

// NewJournal loads the schema at cfg.SchemaPath, or the embedded one.
func NewJournal(cfg config.MangleConfig, log *zap.Logger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	j := &Journal{
		cfg:   cfg,
		log:   log.Named("journal"),
		facts: make([]Fact, 0, cfg.FactBufferLimit),
		index: make(map[string][]int),
		store: factstore.NewSimpleInMemoryStore(),
	}
	if !cfg.Enable {
		return j, nil
	}

	schema := defaultSchema
	if cfg.SchemaPath != "" {
		data, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		schema = data
	}
	if err := j.LoadSchema(schema); err != nil {
		return nil, err
	}
	return j, nil
}

// LoadSchema parses and analyzes a schema, replacing the current program.
func (j *Journal) LoadSchema(src []byte) error {
	unit, err := parse.Unit(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.programInfo = info
	j.schemaLoaded = true
	return nil
}

// AddRule extends the program with rules over the journal predicates.
func (j *Journal) AddRule(src string) error {
	if !j.cfg.Enable {
		return nil
	}
	unit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	existing := make(map[ast.PredicateSym]ast.Decl)
	if j.programInfo != nil {
		for k, v := range j.programInfo.Decls {
			if v != nil {
				existing[k] = *v
			}
		}
	}
	info, err := analysis.AnalyzeOneUnit(unit, existing)
	if err != nil {
		return fmt.Errorf("analyze rule: %w", err)
	}
	if j.programInfo == nil {
		j.programInfo = info
		j.schemaLoaded = true
		return nil
	}
	for k, v := range info.Decls {
		j.programInfo.Decls[k] = v
	}
	j.programInfo.Rules = append(j.programInfo.Rules, info.Rules...)
	return nil
}

// AddFacts records facts and re-derives the rule heads.
func (j *Journal) AddFacts(ctx context.Context, facts []Fact) error {
	if !j.cfg.Enable {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	base := len(j.facts)
	j.facts = append(j.facts, facts...)
	if j.cfg.FactBufferLimit > 0 && len(j.facts) > j.cfg.FactBufferLimit {
		j.facts = j.facts[len(j.facts)-j.cfg.FactBufferLimit:]
		j.rebuildIndex()
	} else {
		for i, f := range facts {
			j.index[f.Predicate] = append(j.index[f.Predicate], base+i)
		}
	}

	for _, f := range facts {
		j.store.Add(factToAtom(f))
	}
	if j.schemaLoaded && j.programInfo != nil {
		if err := engine.EvalProgram(j.programInfo, j.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}
	return nil
}

// Query answers a single atom such as failed_step(RunID, I, Step, D).
// Variables in the atom are bound in each result.
func (j *Journal) Query(ctx context.Context, src string) ([]QueryResult, error) {
	if !j.Ready() || !j.cfg.Enable {
		return nil, fmt.Errorf("journal not ready")
	}
	unit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	q := unit.Clauses[0].Head

	j.mu.RLock()
	defer j.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = j.store.GetFacts(q, func(atom ast.Atom) error {
		res := make(QueryResult)
		for i, arg := range q.Args {
			if i >= len(atom.Args) {
				break
			}
			if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
				res[v.Symbol] = convertConstant(atom.Args[i])
			}
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return results, nil
}

// Evaluate returns every fact of predicate, base or derived.
func (j *Journal) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !j.Ready() || !j.cfg.Enable {
		return nil, fmt.Errorf("journal not ready")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	arity := -1
	for sym := range j.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}
	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	q := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	out := make([]Fact, 0)
	now := time.Now()
	err := j.store.GetFacts(q, func(atom ast.Atom) error {
		out = append(out, atomToFact(atom, now))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	return out, nil
}

// FactsByPredicate returns buffered base facts of predicate in insertion
// order.
func (j *Journal) FactsByPredicate(predicate string) []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	idx := j.index[predicate]
	out := make([]Fact, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(j.facts) {
			out = append(out, j.facts[i])
		}
	}
	return out
}

// QueryTemporal returns buffered facts of predicate recorded in (after, before).
func (j *Journal) QueryTemporal(predicate string, after, before time.Time) []Fact {
	var out []Fact
	for _, f := range j.FactsByPredicate(predicate) {
		if f.Timestamp.After(after) && f.Timestamp.Before(before) {
			out = append(out, f)
		}
	}
	return out
}

// Facts returns a copy of the buffer.
func (j *Journal) Facts() []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Fact, len(j.facts))
	copy(out, j.facts)
	return out
}

// Ready reports whether queries can be answered.
func (j *Journal) Ready() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.schemaLoaded || !j.cfg.Enable
}

func (j *Journal) rebuildIndex() {
	j.index = make(map[string][]int)
	for i, f := range j.facts {
		j.index[f.Predicate] = append(j.index[f.Predicate], i)
	}
}

func factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)}, Args: args}
}

func atomToFact(atom ast.Atom, ts time.Time) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = convertConstant(arg)
	}
	return Fact{Predicate: atom.Predicate.Symbol, Args: args, Timestamp: ts}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	switch term := c.(type) {
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			return term.NumberValue
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}
