// Package sqlgate is the DSL's SQL gatekeeper (C2): a conservative lexical
// check on inline spec SQL, not a full parser. It permits only a whitelisted
// verb per mode, rejects multi-statement and DDL text, rewrites :name binds
// into the driver's positional form, and auto-appends LIMIT to unbounded
// reads.
package sqlgate

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// Mode is which class of statement a gatekeeper call permits.
type Mode string

const (
	ModeExec  Mode = "exec"
	ModeQuery Mode = "query"
)

var (
	execVerbs  = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true}
	queryVerbs = map[string]bool{"SELECT": true, "WITH": true}

	forbiddenWords = []string{"DROP", "CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE", "COPY", "VACUUM"}

	bindRe       = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)
	wordRe       = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	limitTopLvl  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\s*$`)
	leadingVerbR = regexp.MustCompile(`^\s*([A-Za-z]+)`)
)

// Error is a gatekeeper rejection; Code matches one of the stable error
// codes an enclosing handler reports in its error event.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func reject(code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Prepared is the result of a successful Validate call.
type Prepared struct {
	SQL     string   // rewritten with $1, $2, ... placeholders
	Binds   []string // bind names in positional order
	Hash    uint64   // stable hash of the normalized SQL, for events
}

// Validate checks sql against mode's verb whitelist, rejects dangerous
// constructs, rewrites :name binds to $N, and (in query mode) ensures a
// top-level LIMIT is present. names is the set of bind names the caller is
// prepared to supply (bot_id, user_id, plus the wizard/action scope's var
// names); any :name outside that set fails with sql_bind_missing.
func Validate(sql string, mode Mode, allowedNames map[string]bool) (*Prepared, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, reject("sql_error", "empty statement")
	}

	if err := checkSingleStatement(trimmed); err != nil {
		return nil, err
	}
	if err := checkForbidden(trimmed); err != nil {
		return nil, err
	}
	if err := checkVerb(trimmed, mode); err != nil {
		return nil, err
	}

	rewritten, binds, err := rewriteBinds(trimmed, allowedNames)
	if err != nil {
		return nil, err
	}

	if mode == ModeQuery && !limitTopLvl.MatchString(strings.TrimRight(rewritten, "; \t\n")) {
		rewritten = strings.TrimRight(rewritten, "; \t\n") + " LIMIT 100"
	}

	return &Prepared{
		SQL:   rewritten,
		Binds: binds,
		Hash:  NormalizedHash(trimmed),
	}, nil
}

// checkSingleStatement rejects any `;` before the end of the statement;
// trailing `;`s are tolerated.
func checkSingleStatement(sql string) error {
	body := strings.TrimRight(sql, "; \t\n")
	if strings.Contains(body, ";") {
		return reject("sql_error", "multiple statements are not permitted")
	}
	return nil
}

func checkForbidden(sql string) error {
	upper := strings.ToUpper(sql)
	for _, w := range forbiddenWords {
		for _, m := range wordRe.FindAllStringIndex(upper, -1) {
			if upper[m[0]:m[1]] == w {
				return reject("sql_error", "forbidden keyword %s", w)
			}
		}
	}
	return nil
}

func checkVerb(sql string, mode Mode) error {
	m := leadingVerbR.FindStringSubmatch(sql)
	if m == nil {
		return reject("sql_error", "no leading verb")
	}
	verb := strings.ToUpper(m[1])

	var allowed map[string]bool
	switch mode {
	case ModeExec:
		allowed = execVerbs
	case ModeQuery:
		allowed = queryVerbs
	default:
		return reject("sql_error", "unknown mode %q", mode)
	}
	if !allowed[verb] {
		return reject("sql_error", "verb %s not permitted in %s mode", verb, mode)
	}
	return nil
}

// rewriteBinds replaces each :name with a $N placeholder in first-seen
// order, validating every name against allowedNames.
func rewriteBinds(sql string, allowedNames map[string]bool) (string, []string, error) {
	var binds []string
	seen := map[string]int{}

	out := bindRe.ReplaceAllStringFunc(sql, func(m string) string {
		name := m[1:]
		if !allowedNames[name] {
			return m
		}
		if idx, ok := seen[name]; ok {
			return fmt.Sprintf("$%d", idx)
		}
		binds = append(binds, name)
		idx := len(binds)
		seen[name] = idx
		return fmt.Sprintf("$%d", idx)
	})

	for _, m := range bindRe.FindAllStringSubmatch(sql, -1) {
		if !allowedNames[m[1]] {
			return "", nil, reject("sql_bind_missing", "unknown bind :%s", m[1])
		}
	}

	return out, binds, nil
}

// NormalizedHash computes a stable 64-bit hash of sql with whitespace runs
// collapsed to a single space, case preserved.
func NormalizedHash(sql string) uint64 {
	normalized := strings.Join(strings.Fields(sql), " ")
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	return h.Sum64()
}
