package store

import (
	"io/fs"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	for _, dialect := range []Dialect{Postgres, SQLite} {
		migrations, err := Migrations(dialect, "")
		if err != nil {
			t.Fatalf("Migrations(%s) error = %v", dialect, err)
		}
		entries, err := fs.ReadDir(migrations, ".")
		if err != nil {
			t.Fatalf("read migrations dir: %v", err)
		}

		pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
		byVersion := map[string]map[string]bool{}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}
			version := match[1]
			direction := match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("%s: duplicate %s migration file for version %s", dialect, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("%s: no migrations discovered", dialect)
		}

		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s: version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestDialectsShareMigrationVersions(t *testing.T) {
	pg, _ := Migrations(Postgres, "")
	lite, _ := Migrations(SQLite, "")
	pgEntries, err := fs.ReadDir(pg, ".")
	if err != nil {
		t.Fatalf("read postgres migrations: %v", err)
	}
	liteEntries, err := fs.ReadDir(lite, ".")
	if err != nil {
		t.Fatalf("read sqlite migrations: %v", err)
	}
	if len(pgEntries) != len(liteEntries) {
		t.Fatalf("postgres has %d migration files, sqlite has %d", len(pgEntries), len(liteEntries))
	}
	for i := range pgEntries {
		if pgEntries[i].Name() != liteEntries[i].Name() {
			t.Fatalf("migration %d differs: %s vs %s", i, pgEntries[i].Name(), liteEntries[i].Name())
		}
	}
}
