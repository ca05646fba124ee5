package changes

import (
	"testing"

	"github.com/relicta-tech/releasekit/internal/domain/version"
)

func TestParseConventionalCommit(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantType  CommitType
		wantScope string
		wantDesc  string
		wantBreak bool
		wantBump  version.BumpType
		wantNil   bool
	}{
		{
			name:     "simple feat",
			message:  "feat: add new feature",
			wantType: CommitTypeFeat,
			wantDesc: "add new feature",
			wantBump: version.BumpMinor,
		},
		{
			name:      "fix with scope",
			message:   "fix(api): resolve null pointer",
			wantType:  CommitTypeFix,
			wantScope: "api",
			wantDesc:  "resolve null pointer",
			wantBump:  version.BumpPatch,
		},
		{
			name:     "perf",
			message:  "perf: cache graph levels",
			wantType: CommitTypePerf,
			wantDesc: "cache graph levels",
			wantBump: version.BumpPatch,
		},
		{
			name:      "breaking with exclamation",
			message:   "feat(api)!: change response format",
			wantType:  CommitTypeFeat,
			wantScope: "api",
			wantDesc:  "change response format",
			wantBreak: true,
			wantBump:  version.BumpMajor,
		},
		{
			name:      "breaking chore",
			message:   "chore!: drop node 16",
			wantType:  CommitTypeChore,
			wantDesc:  "drop node 16",
			wantBreak: true,
			wantBump:  version.BumpMajor,
		},
		{
			name:      "breaking marker in subject",
			message:   "refactor: BREAKING CHANGE rename config keys",
			wantType:  CommitTypeRefactor,
			wantDesc:  "BREAKING CHANGE rename config keys",
			wantBreak: true,
			wantBump:  version.BumpMajor,
		},
		{
			name:      "breaking marker in body",
			message:   "fix: tighten validation\n\nBREAKING CHANGE: empty names are rejected",
			wantType:  CommitTypeFix,
			wantDesc:  "tighten validation",
			wantBreak: true,
			wantBump:  version.BumpMajor,
		},
		{
			name:     "chore carries no bump",
			message:  "chore: update dependencies",
			wantType: CommitTypeChore,
			wantDesc: "update dependencies",
			wantBump: version.BumpNone,
		},
		{
			name:     "unknown type parses with no bump",
			message:  "wip: half done",
			wantType: CommitType("wip"),
			wantDesc: "half done",
			wantBump: version.BumpNone,
		},
		{name: "empty message", message: "", wantNil: true},
		{name: "no colon", message: "update readme", wantNil: true},
		{name: "empty description", message: "feat: ", wantNil: true},
		{name: "empty description no space", message: "fix:", wantNil: true},
		{name: "uppercase type", message: "Feat: add thing", wantNil: true},
		{name: "space before bang", message: "feat !: add thing", wantNil: true},
		{name: "bang after colon", message: "feat:! add thing", wantType: CommitTypeFeat, wantDesc: "! add thing", wantBump: version.BumpMinor},
		{name: "space before colon", message: "feat : add thing", wantNil: true},
		{name: "empty scope", message: "feat(): add thing", wantNil: true},
		{name: "merge commit", message: "Merge branch 'main' into dev", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseConventionalCommit("abc1234def", tt.message)
			if tt.wantNil {
				if c != nil {
					t.Fatalf("ParseConventionalCommit(%q) = %v, want nil", tt.message, c)
				}
				return
			}
			if c == nil {
				t.Fatalf("ParseConventionalCommit(%q) = nil", tt.message)
			}
			if c.Type() != tt.wantType {
				t.Errorf("Type() = %v, want %v", c.Type(), tt.wantType)
			}
			if c.Scope() != tt.wantScope {
				t.Errorf("Scope() = %v, want %v", c.Scope(), tt.wantScope)
			}
			if c.Description() != tt.wantDesc {
				t.Errorf("Description() = %q, want %q", c.Description(), tt.wantDesc)
			}
			if c.IsBreaking() != tt.wantBreak {
				t.Errorf("IsBreaking() = %v, want %v", c.IsBreaking(), tt.wantBreak)
			}
			if c.Bump() != tt.wantBump {
				t.Errorf("Bump() = %v, want %v", c.Bump(), tt.wantBump)
			}
		})
	}
}

func TestConventionalCommit_RoundTrip(t *testing.T) {
	subjects := []string{
		"feat: add new feature",
		"fix(core): handle nil",
		"feat(api)!: change response format",
		"docs!: remove deprecated guide",
		"perf(graph): faster leveling",
	}

	for _, s := range subjects {
		t.Run(s, func(t *testing.T) {
			first := ParseConventionalCommit("sha", s)
			if first == nil {
				t.Fatalf("ParseConventionalCommit(%q) = nil", s)
			}
			if first.String() != s {
				t.Errorf("String() = %q, want %q", first.String(), s)
			}
			second := ParseConventionalCommit("sha", first.String())
			if second == nil {
				t.Fatalf("reparse of %q = nil", first.String())
			}
			if second.Type() != first.Type() || second.Scope() != first.Scope() || second.IsBreaking() != first.IsBreaking() {
				t.Errorf("round trip changed (type, scope, breaking): %v -> %v", first, second)
			}
		})
	}
}

func TestParseLogLine(t *testing.T) {
	c := ParseLogLine("0123456789abcdef feat(cli): add --only flag")
	if c == nil {
		t.Fatal("ParseLogLine() = nil")
	}
	if c.SHA() != "0123456789abcdef" || c.ShortSHA() != "0123456" {
		t.Errorf("SHA() = %q, ShortSHA() = %q", c.SHA(), c.ShortSHA())
	}
	if c.Scope() != "cli" || c.Type() != CommitTypeFeat {
		t.Errorf("parsed %v", c)
	}

	if ParseLogLine("0123456789abcdef") != nil {
		t.Error("ParseLogLine() without subject should be nil")
	}
	if ParseLogLine("0123456789abcdef Merge pull request #4") != nil {
		t.Error("ParseLogLine() with non-conventional subject should be nil")
	}
}

func TestCommitType_Bump(t *testing.T) {
	tests := map[CommitType]version.BumpType{
		CommitTypeFeat:     version.BumpMinor,
		CommitTypeFix:      version.BumpPatch,
		CommitTypePerf:     version.BumpPatch,
		CommitTypeChore:    version.BumpNone,
		CommitTypeDocs:     version.BumpNone,
		CommitTypeCI:       version.BumpNone,
		CommitTypeTest:     version.BumpNone,
		CommitTypeBuild:    version.BumpNone,
		CommitTypeStyle:    version.BumpNone,
		CommitTypeRefactor: version.BumpNone,
		CommitTypeRevert:   version.BumpNone,
	}
	for ct, want := range tests {
		if got := ct.Bump(); got != want {
			t.Errorf("%s.Bump() = %v, want %v", ct, got, want)
		}
		if !ct.IsStandard() {
			t.Errorf("%s.IsStandard() = false", ct)
		}
	}
	if CommitType("wip").IsStandard() {
		t.Error("wip should not be a standard type")
	}
}
