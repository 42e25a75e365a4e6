package config

import "testing"

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "amora", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		RTC:   RTCConfig{AppID: "app-1", AppCertificate: "cert"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "amora"
	c.Auth.JWTAudience = "amora-app"
	c.Razorpay = RazorpayConfig{KeyID: "k", KeySecret: "s", WebhookSecret: "w"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_AppliesCallDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Call.CostCoins != 150 {
		t.Fatalf("expected default call cost 150, got %d", c.Call.CostCoins)
	}
	if c.Call.MessageCostCoins != 10 {
		t.Fatalf("expected default message cost 10, got %d", c.Call.MessageCostCoins)
	}
	if c.Call.RingTimeout <= 0 {
		t.Fatalf("expected ring timeout default")
	}
}

func TestValidate_RequiresRTCIdentity(t *testing.T) {
	c := validBase()
	c.RTC.AppID = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing RTC_APP_ID")
	}
}
