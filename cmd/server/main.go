package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/audit"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/auth"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/config"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/profile"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/server"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	slog.Info("Connecting to database")
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	slog.Info("Connected to database")

	slog.Info("Running migrations")
	if err := database.RunMigrations(ctx, pool, schemaMigrations()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Migrations complete")

	store, err := storage.NewObjectStore(ctx, pool, storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.SiteURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	authService := auth.NewAuthService(pool, cfg.JWTSecret, cfg.JWTExpiry)
	profileService := profile.NewProfileService(pool)
	auditService := audit.NewAuditService(pool)

	srv := server.New(cfg, pool, authService, profileService, store, auditService)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("Shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		httpServer.Shutdown(shutCtx)
		pool.Close()
	}()

	slog.Info("Server started", "host", cfg.Host, "port", cfg.Port)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func schemaMigrations() []database.Migration {
	return []database.Migration{
		{
			Name: "001_users.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS public.users (
  id BIGSERIAL PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  middle_name TEXT,
  last_name TEXT NOT NULL,
  extension TEXT,
  student_number TEXT NOT NULL,
  course TEXT NOT NULL,
  grades JSONB,
  tor_url TEXT,
  tor_storage_path TEXT,
  tor_notes JSONB,
  tor_uploaded_at TIMESTAMPTZ,
  primary_archetype TEXT,
  archetype_analyzed_at TIMESTAMPTZ,
  archetype_realistic_percentage DOUBLE PRECISION,
  archetype_investigative_percentage DOUBLE PRECISION,
  archetype_artistic_percentage DOUBLE PRECISION,
  archetype_social_percentage DOUBLE PRECISION,
  archetype_enterprising_percentage DOUBLE PRECISION,
  archetype_conventional_percentage DOUBLE PRECISION,
  career_recommendations JSONB,
  analysis_results JSONB,
  certificate_paths TEXT[] NOT NULL DEFAULT '{}',
  certificate_urls TEXT[] NOT NULL DEFAULT '{}',
  certificates_count INTEGER NOT NULL DEFAULT 0,
  latest_certificate_path TEXT,
  latest_certificate_url TEXT,
  latest_certificate_uploaded_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_email ON public.users(email);
CREATE INDEX IF NOT EXISTS idx_users_student_number ON public.users(student_number);

CREATE SCHEMA IF NOT EXISTS storage;

CREATE TABLE IF NOT EXISTS storage.objects (
  id BIGSERIAL PRIMARY KEY,
  bucket_id TEXT NOT NULL,
  name TEXT NOT NULL,
  content_type TEXT,
  size_bytes BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (bucket_id, name)
);

CREATE INDEX IF NOT EXISTS idx_storage_objects_bucket ON storage.objects(bucket_id);

CREATE TABLE IF NOT EXISTS public.audit_log (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT REFERENCES public.users(id) ON DELETE SET NULL,
  action TEXT NOT NULL,
  resource_type TEXT,
  resource_id TEXT,
  ip_address TEXT,
  user_agent TEXT,
  metadata JSONB DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_user ON public.audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON public.audit_log(action);

DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'anon') THEN
    CREATE ROLE anon NOLOGIN;
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'authenticated') THEN
    CREATE ROLE authenticated NOLOGIN;
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'service_role') THEN
    CREATE ROLE service_role NOLOGIN BYPASSRLS;
  END IF;
END
$$;

-- The pool connects as a single definer-privilege user and assumes the
-- request role per transaction with SET LOCAL ROLE.
GRANT anon, authenticated, service_role TO CURRENT_USER;

GRANT USAGE ON SCHEMA public TO anon, authenticated, service_role;
GRANT USAGE ON SCHEMA storage TO authenticated, service_role;

GRANT SELECT, UPDATE ON public.users TO authenticated;
GRANT ALL ON public.users TO service_role;
GRANT SELECT, INSERT, UPDATE, DELETE ON storage.objects TO authenticated;
GRANT ALL ON storage.objects TO service_role;
GRANT USAGE ON ALL SEQUENCES IN SCHEMA storage TO authenticated, service_role;
`,
		},
		{
			Name: "002_rls_policies.sql",
			SQL: `
ALTER TABLE public.users ENABLE ROW LEVEL SECURITY;
ALTER TABLE storage.objects ENABLE ROW LEVEL SECURITY;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = 'public' AND tablename = 'users'
      AND policyname = 'Users can view own profile'
  ) THEN
    CREATE POLICY "Users can view own profile" ON public.users
      FOR SELECT TO authenticated
      USING (current_setting('request.jwt.claim.email', true) = email);
  END IF;

  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = 'public' AND tablename = 'users'
      AND policyname = 'Users can update own profile'
  ) THEN
    CREATE POLICY "Users can update own profile" ON public.users
      FOR UPDATE TO authenticated
      USING (current_setting('request.jwt.claim.email', true) = email)
      WITH CHECK (current_setting('request.jwt.claim.email', true) = email);
  END IF;

  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = 'storage' AND tablename = 'objects'
      AND policyname = 'Authenticated users can upload files'
  ) THEN
    CREATE POLICY "Authenticated users can upload files" ON storage.objects
      FOR INSERT TO authenticated
      WITH CHECK (bucket_id IN ('certificates', 'tor'));
  END IF;

  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = 'storage' AND tablename = 'objects'
      AND policyname = 'Authenticated users can update files'
  ) THEN
    CREATE POLICY "Authenticated users can update files" ON storage.objects
      FOR UPDATE TO authenticated
      USING (bucket_id IN ('certificates', 'tor'))
      WITH CHECK (bucket_id IN ('certificates', 'tor'));
  END IF;

  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = 'storage' AND tablename = 'objects'
      AND policyname = 'Authenticated users can delete files'
  ) THEN
    CREATE POLICY "Authenticated users can delete files" ON storage.objects
      FOR DELETE TO authenticated
      USING (bucket_id IN ('certificates', 'tor'));
  END IF;
END
$$;
`,
		},
		{
			Name: "003_procedures.sql",
			SQL: `
CREATE OR REPLACE FUNCTION public.clear_tor_by_email(target_email text)
RETURNS boolean
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public
AS $fn$
DECLARE
  affected integer;
BEGIN
  UPDATE public.users SET
    tor_url = NULL,
    tor_storage_path = NULL,
    tor_notes = NULL,
    tor_uploaded_at = NULL,
    primary_archetype = NULL,
    archetype_analyzed_at = NULL,
    archetype_realistic_percentage = NULL,
    archetype_investigative_percentage = NULL,
    archetype_artistic_percentage = NULL,
    archetype_social_percentage = NULL,
    archetype_enterprising_percentage = NULL,
    archetype_conventional_percentage = NULL,
    career_recommendations = NULL,
    analysis_results = NULL
  WHERE email = target_email;

  GET DIAGNOSTICS affected = ROW_COUNT;
  RETURN affected > 0;
END;
$fn$;

REVOKE EXECUTE ON FUNCTION public.clear_tor_by_email(text) FROM PUBLIC;
GRANT EXECUTE ON FUNCTION public.clear_tor_by_email(text) TO anon, authenticated, service_role;

CREATE OR REPLACE FUNCTION public.update_user_grades(p_user_id bigint, p_grades jsonb)
RETURNS void
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public
AS $fn$
BEGIN
  UPDATE public.users SET
    grades = p_grades,
    updated_at = NOW()
  WHERE id = p_user_id;
END;
$fn$;

REVOKE EXECUTE ON FUNCTION public.update_user_grades(bigint, jsonb) FROM PUBLIC;
GRANT EXECUTE ON FUNCTION public.update_user_grades(bigint, jsonb) TO authenticated, service_role;

CREATE OR REPLACE FUNCTION public.get_user_grades(p_user_id bigint)
RETURNS jsonb
LANGUAGE sql
STABLE
SECURITY DEFINER
SET search_path = public
AS $fn$
  SELECT grades FROM public.users WHERE id = p_user_id;
$fn$;

REVOKE EXECUTE ON FUNCTION public.get_user_grades(bigint) FROM PUBLIC;
GRANT EXECUTE ON FUNCTION public.get_user_grades(bigint) TO authenticated, service_role;
`,
		},
		{
			Name: "004_grades_index.sql",
			SQL: `
CREATE INDEX IF NOT EXISTS idx_users_grades ON public.users USING GIN (grades);
`,
		},
	}
}
