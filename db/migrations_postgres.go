package db

// PostgreSQL migrations for the crawler

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_crawler_catalogs_table",
		Up: `
			CREATE TABLE IF NOT EXISTS crawler_catalogs (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				slug TEXT NOT NULL,
				storage_path TEXT,
				exercise_count INTEGER NOT NULL DEFAULT 0,
				data TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_crawler_catalogs_url ON crawler_catalogs(url);
			CREATE INDEX IF NOT EXISTS idx_crawler_catalogs_created_at ON crawler_catalogs(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_crawler_catalogs_created_at;
			DROP INDEX IF EXISTS idx_crawler_catalogs_url;
			DROP TABLE IF EXISTS crawler_catalogs;
		`,
	},
	{
		Version: 2,
		Name:    "create_crawler_exercises_table",
		Up: `
			CREATE TABLE IF NOT EXISTS crawler_exercises (
				id TEXT PRIMARY KEY,
				catalog_id TEXT NOT NULL REFERENCES crawler_catalogs(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				title TEXT NOT NULL,
				url TEXT,
				tags TEXT[] NOT NULL DEFAULT '{}',
				search_text TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_crawler_exercises_catalog_id ON crawler_exercises(catalog_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_crawler_exercises_catalog_id;
			DROP TABLE IF EXISTS crawler_exercises;
		`,
	},
	{
		Version: 3,
		Name:    "add_crawler_exercises_search_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_crawler_exercises_search ON crawler_exercises
				USING GIN (to_tsvector('simple', title || ' ' || search_text));
			CREATE INDEX IF NOT EXISTS idx_crawler_exercises_tags ON crawler_exercises USING GIN (tags);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_crawler_exercises_tags;
			DROP INDEX IF EXISTS idx_crawler_exercises_search;
		`,
	},
}
