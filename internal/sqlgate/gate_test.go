package sqlgate

import "testing"

func allNames(names ...string) map[string]bool {
	m := map[string]bool{}
	for _, n := range names {
		m[n] = true
	}
	return m
}

func TestValidate_QueryAddsLimit(t *testing.T) {
	p, err := Validate("SELECT * FROM bookings WHERE bot_id = :bot_id", ModeQuery, allNames("bot_id"))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.SQL != "SELECT * FROM bookings WHERE bot_id = $1 LIMIT 100" {
		t.Errorf("SQL = %q", p.SQL)
	}
	if len(p.Binds) != 1 || p.Binds[0] != "bot_id" {
		t.Errorf("Binds = %v", p.Binds)
	}
}

func TestValidate_QueryKeepsExistingLimit(t *testing.T) {
	p, err := Validate("SELECT 1 LIMIT 5", ModeQuery, allNames())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.SQL != "SELECT 1 LIMIT 5" {
		t.Errorf("SQL = %q", p.SQL)
	}
}

func TestValidate_ExecRejectsSelect(t *testing.T) {
	_, err := Validate("SELECT 1", ModeExec, allNames())
	if err == nil {
		t.Fatal("expected rejection of SELECT in exec mode")
	}
}

func TestValidate_ExecAllowsInsertUpdateDelete(t *testing.T) {
	for _, sql := range []string{
		"INSERT INTO bookings (bot_id) VALUES (:bot_id)",
		"UPDATE bookings SET service = :svc WHERE bot_id = :bot_id",
		"DELETE FROM bookings WHERE bot_id = :bot_id",
	} {
		if _, err := Validate(sql, ModeExec, allNames("bot_id", "svc")); err != nil {
			t.Errorf("Validate(%q) error = %v", sql, err)
		}
	}
}

func TestValidate_RejectsForbiddenKeyword(t *testing.T) {
	_, err := Validate("DROP TABLE bookings", ModeExec, allNames())
	if err == nil {
		t.Fatal("expected rejection of DROP")
	}
}

func TestValidate_RejectsMultiStatement(t *testing.T) {
	_, err := Validate("SELECT 1; DROP TABLE bookings", ModeQuery, allNames())
	if err == nil {
		t.Fatal("expected rejection of multi-statement input")
	}
}

func TestValidate_RejectsUnknownBind(t *testing.T) {
	_, err := Validate("SELECT * FROM bookings WHERE bot_id = :bot_id AND x = :evil", ModeQuery, allNames("bot_id"))
	if err == nil {
		t.Fatal("expected sql_bind_missing")
	}
	var sqlErr *Error
	if e, ok := err.(*Error); ok {
		sqlErr = e
	}
	if sqlErr == nil || sqlErr.Code != "sql_bind_missing" {
		t.Errorf("err = %v, want sql_bind_missing", err)
	}
}

func TestNormalizedHash_Stable(t *testing.T) {
	a := NormalizedHash("SELECT   1\nFROM  t")
	b := NormalizedHash("SELECT 1 FROM t")
	if a != b {
		t.Errorf("hashes differ for whitespace-equivalent SQL: %d != %d", a, b)
	}
	c := NormalizedHash("select 1 from t")
	if a == c {
		t.Errorf("hash should be case-preserving: %d == %d", a, c)
	}
}
