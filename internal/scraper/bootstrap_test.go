// internal/scraper/bootstrap_test.go
package scraper

import "testing"

func TestExtractBootstrapConfig(t *testing.T) {
	body := `<html><head><script>
		window.app = {
			"shortCode": "abc12345",
			"clientId": "aaaabbbb-cccc-dddd-eeee-ffff00001111",
			"organizationId": "f_ecom_acme_prd",
			"siteId": "acme-us",
			"search": {"cgid": "mens-shoes", "locale": "en_US"}
		};
	</script></head></html>`

	cfg := ExtractBootstrapConfig(body)
	if !cfg.Complete() {
		t.Fatalf("expected complete config, got %+v", cfg)
	}
	if cfg.ShortCode != "abc12345" {
		t.Errorf("ShortCode = %q", cfg.ShortCode)
	}
	if cfg.ClientID != "aaaabbbb-cccc-dddd-eeee-ffff00001111" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if cfg.OrganizationID != "f_ecom_acme_prd" {
		t.Errorf("OrganizationID = %q", cfg.OrganizationID)
	}
	if cfg.SiteID != "acme-us" {
		t.Errorf("SiteID = %q", cfg.SiteID)
	}
	if cfg.SearchState["cgid"] != "mens-shoes" {
		t.Errorf("cgid = %q", cfg.SearchState["cgid"])
	}
	if cfg.SearchState["locale"] != "en_US" {
		t.Errorf("locale = %q", cfg.SearchState["locale"])
	}
}

func TestExtractBootstrapConfig_SnakeCaseAssignments(t *testing.T) {
	body := `var short_code = 'zzz99999'; var client_id = 'cid-1';
		var organization_id = 'org-1'; var site_id = 'acme-de';`

	cfg := ExtractBootstrapConfig(body)
	if !cfg.Complete() {
		t.Fatalf("expected complete config, got %+v", cfg)
	}
	if cfg.ShortCode != "zzz99999" || cfg.SiteID != "acme-de" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestExtractBootstrapConfig_Incomplete(t *testing.T) {
	cfg := ExtractBootstrapConfig(`{"siteId": "acme-us"}`)
	if cfg.Complete() {
		t.Error("partial credentials must not report complete")
	}

	var nilCfg *BootstrapConfig
	if nilCfg.Complete() {
		t.Error("nil config must not report complete")
	}
}
