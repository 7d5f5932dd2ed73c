package workflow

import "strings"

// Classify inspects a write's SQL and parameters and maps it onto one of
// the known trigger shapes. The second return is false for writes that
// cannot trigger automation (reads, other tables, unrecognized shapes).
//
// Only placeholder-style writes are classified; inline literals are not
// worth parsing since every client the engine trusts sends parameters.
func Classify(sqlText string, params []any) (Event, bool) {
	norm := strings.ToLower(strings.TrimSpace(sqlText))

	switch {
	case strings.HasPrefix(norm, "insert into cards"):
		cols := insertColumns(norm)
		ev := Event{Type: TriggerCardCreated}
		ev.CardID = paramFor(cols, params, "id")
		ev.ListID = paramFor(cols, params, "list_id")
		ev.Tags = paramFor(cols, params, "tags")
		return ev, true

	case strings.HasPrefix(norm, "update cards"):
		cols := updateColumns(norm)
		moved := false
		tagged := false
		for _, c := range cols {
			if c == "list_id" {
				moved = true
			}
			if c == "tags" {
				tagged = true
			}
		}

		// A move takes precedence over a tag change when both columns
		// appear in one statement.
		switch {
		case moved:
			return Event{
				Type:   TriggerCardMoved,
				ListID: paramFor(cols, params, "list_id"),
				CardID: whereIDParam(norm, cols, params),
				Tags:   paramFor(cols, params, "tags"),
			}, true
		case tagged:
			return Event{
				Type:   TriggerCardTagged,
				Tags:   paramFor(cols, params, "tags"),
				CardID: whereIDParam(norm, cols, params),
			}, true
		}
	}

	return Event{}, false
}

// insertColumns parses the column list of "insert into cards (a, b, c) values (...)".
func insertColumns(norm string) []string {
	open := strings.Index(norm, "(")
	if open < 0 {
		return nil
	}
	close := strings.Index(norm[open:], ")")
	if close < 0 {
		return nil
	}

	parts := strings.Split(norm[open+1:open+close], ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		cols = append(cols, strings.TrimSpace(p))
	}
	return cols
}

// updateColumns parses the assignment targets of "update cards set a = ?, b = ? where ...".
// Only "col = ?" assignments count toward parameter positions.
func updateColumns(norm string) []string {
	setIdx := strings.Index(norm, " set ")
	if setIdx < 0 {
		return nil
	}
	clause := norm[setIdx+5:]
	if whereIdx := strings.Index(clause, " where "); whereIdx >= 0 {
		clause = clause[:whereIdx]
	}

	var cols []string
	for _, part := range strings.Split(clause, ",") {
		eq := strings.Index(part, "=")
		if eq < 0 {
			continue
		}
		col := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		if val == "?" {
			cols = append(cols, col)
		}
	}
	return cols
}

// paramFor returns the parameter bound to the named column, if present.
func paramFor(cols []string, params []any, name string) string {
	for i, c := range cols {
		if c == name && i < len(params) {
			if s, ok := params[i].(string); ok {
				return s
			}
		}
	}
	return ""
}

// whereIDParam returns the parameter bound to "where id = ?", which by
// convention trails the assignment parameters.
func whereIDParam(norm string, cols []string, params []any) string {
	if !strings.Contains(norm, "where id = ?") {
		return ""
	}
	if len(params) <= len(cols) {
		return ""
	}
	if s, ok := params[len(cols)].(string); ok {
		return s
	}
	return ""
}
