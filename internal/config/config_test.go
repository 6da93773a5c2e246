package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ProjectsRoot != "/home/node/.claude/projects" {
		t.Errorf("Expected default projects root, got %q", cfg.ProjectsRoot)
	}
	if cfg.Timeout.Query != 5*time.Minute {
		t.Errorf("Expected 5m query timeout, got %v", cfg.Timeout.Query)
	}
	if cfg.Timeout.PTYIdle != 30*time.Minute {
		t.Errorf("Expected 30m PTY idle timeout, got %v", cfg.Timeout.PTYIdle)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode with empty frontend URL")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("QUERY_TIMEOUT", "90s")
	t.Setenv("PROJECTS_ROOT", "/srv/projects")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Expected port override, got %q", cfg.Port)
	}
	if cfg.Timeout.Query != 90*time.Second {
		t.Errorf("Expected query timeout override, got %v", cfg.Timeout.Query)
	}
	if cfg.ProjectsRoot != "/srv/projects" {
		t.Errorf("Expected projects root override, got %q", cfg.ProjectsRoot)
	}
}

func TestLoad_RejectsRelativeProjectsRoot(t *testing.T) {
	t.Setenv("PROJECTS_ROOT", "projects")

	if _, err := Load(); err == nil {
		t.Error("Expected error for relative projects root")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timeout.Query != 5*time.Minute {
		t.Errorf("Expected fallback query timeout, got %v", cfg.Timeout.Query)
	}
}

func TestTiers_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	free := cfg.Tiers["free"]
	if free.MemoryBytes != 512*1024*1024 {
		t.Errorf("Expected 512MiB free tier, got %d", free.MemoryBytes)
	}
	pro := cfg.Tiers["pro"]
	if pro.CPUQuota != 150000 || pro.CPUPeriod != 100000 {
		t.Errorf("Expected pro CPU 150000/100000, got %d/%d", pro.CPUQuota, pro.CPUPeriod)
	}
}

func TestTiers_EnvOverride(t *testing.T) {
	t.Setenv("TIER_FREE_MEMORY_MB", "1024")
	t.Setenv("TIER_ENTERPRISE_CPU_QUOTA", "800000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tiers["free"].MemoryBytes != 1024*1024*1024 {
		t.Errorf("Expected overridden free memory, got %d", cfg.Tiers["free"].MemoryBytes)
	}
	if cfg.Tiers["enterprise"].CPUQuota != 800000 {
		t.Errorf("Expected overridden enterprise quota, got %d", cfg.Tiers["enterprise"].CPUQuota)
	}
}

func TestTierFor_FallsBackToFree(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	name, limits := cfg.TierFor("platinum")
	if name != "free" {
		t.Errorf("Expected fallback to free, got %q", name)
	}
	if limits.MemoryBytes != cfg.Tiers["free"].MemoryBytes {
		t.Error("Expected free tier limits on fallback")
	}

	name, _ = cfg.TierFor("pro")
	if name != "pro" {
		t.Errorf("Expected known tier kept, got %q", name)
	}

	name, _ = cfg.TierFor("")
	if name != "free" {
		t.Errorf("Expected empty tier to resolve to free, got %q", name)
	}
}
