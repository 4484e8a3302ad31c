package collectors

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// maxLookups bounds per-run lookups against rate limited services.
const maxLookups = 3

// Shodan looks up IPs in Shodan's host API.
type Shodan struct {
	base
	apiKey       string
	allowNetwork bool
	http         *HTTPClient
	endpoint     string
}

func NewShodan(apiKey string, allowNetwork bool, http *HTTPClient) *Shodan {
	return &Shodan{
		base:         base{name: "shodan", description: "Lookup IPs via Shodan", network: true},
		apiKey:       apiKey,
		allowNetwork: allowNetwork,
		http:         http,
		endpoint:     "https://api.shodan.io/shodan/host/",
	}
}

func (c *Shodan) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	ips := extractIPs(p.Text)
	if len(ips) == 0 {
		return []core.Evidence{c.evidence("No IPs detected for Shodan lookup", confidenceDegraded)}
	}
	if !c.allowNetwork || c.apiKey == "" {
		return []core.Evidence{c.degraded("Shodan not executed. Try: https://www.shodan.io/host/" + ips[0])}
	}
	var out []core.Evidence
	for _, ip := range firstN(ips, maxLookups) {
		var resp struct {
			Org   string `json:"org"`
			ISP   string `json:"isp"`
			Ports []int  `json:"ports"`
		}
		if err := c.http.GetJSON(ctx, c.endpoint+ip, url.Values{"key": {c.apiKey}}, nil, &resp); err != nil {
			out = append(out, c.failed("Shodan lookup for "+ip, err))
			continue
		}
		out = append(out, c.evidence(fmt.Sprintf("Shodan: %s org=%s isp=%s open_ports=%v", ip, orUnknown(resp.Org), orUnknown(resp.ISP), resp.Ports), 0.6).
			WithMetadata(map[string]interface{}{"ip": ip, "ports": resp.Ports}))
	}
	return out
}

// Censys looks up IPs in the Censys hosts API.
type Censys struct {
	base
	apiID, apiSecret string
	allowNetwork     bool
	http             *HTTPClient
	endpoint         string
}

func NewCensys(apiID, apiSecret string, allowNetwork bool, http *HTTPClient) *Censys {
	return &Censys{
		base:         base{name: "censys", description: "Lookup IPs via Censys", network: true},
		apiID:        apiID,
		apiSecret:    apiSecret,
		allowNetwork: allowNetwork,
		http:         http,
		endpoint:     "https://search.censys.io/api/v2/hosts/",
	}
}

func (c *Censys) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	ips := extractIPs(p.Text)
	if len(ips) == 0 {
		return []core.Evidence{c.evidence("No IPs detected for Censys lookup", confidenceDegraded)}
	}
	if !c.allowNetwork || c.apiID == "" || c.apiSecret == "" {
		return []core.Evidence{c.degraded("Censys not executed. Try: https://search.censys.io/hosts/" + ips[0])}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.apiID + ":" + c.apiSecret))
	headers := map[string]string{"Authorization": "Basic " + auth}
	var out []core.Evidence
	for _, ip := range firstN(ips, maxLookups) {
		var resp struct {
			Result struct {
				Services []struct {
					ServiceName string `json:"service_name"`
					Port        int    `json:"port"`
				} `json:"services"`
			} `json:"result"`
		}
		if err := c.http.GetJSON(ctx, c.endpoint+ip, nil, headers, &resp); err != nil {
			out = append(out, c.failed("Censys lookup for "+ip, err))
			continue
		}
		var names []string
		for _, s := range resp.Result.Services {
			names = append(names, s.ServiceName)
		}
		out = append(out, c.evidence(fmt.Sprintf("Censys: %s services=%v", ip, firstN(names, 5)), 0.58).
			WithMetadata(map[string]interface{}{"ip": ip, "services": names}))
	}
	return out
}

// Whois suggests whois lookups for discovered hosts.
type Whois struct{ base }

func NewWhois() *Whois {
	return &Whois{base{name: "whois", description: "Whois guidance for domains"}}
}

func (c *Whois) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	hosts := extractHosts(p)
	if len(hosts) == 0 {
		return []core.Evidence{c.evidence("No domains detected for whois", confidenceDegraded)}
	}
	var out []core.Evidence
	for _, h := range firstN(hosts, maxLookups) {
		out = append(out, c.evidence(fmt.Sprintf("Run whois for %s or visit https://who.is/whois/%s", h, h), 0.35))
	}
	return out
}

// BuiltWith looks up the technology stack of the first host.
type BuiltWith struct {
	base
	apiKey       string
	allowNetwork bool
	http         *HTTPClient
	endpoint     string
}

func NewBuiltWith(apiKey string, allowNetwork bool, http *HTTPClient) *BuiltWith {
	return &BuiltWith{
		base:         base{name: "builtwith", description: "Tech stack lookup", network: true},
		apiKey:       apiKey,
		allowNetwork: allowNetwork,
		http:         http,
		endpoint:     "https://api.builtwith.com/v21/api.json",
	}
}

func (c *BuiltWith) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	hosts := extractHosts(p)
	if len(hosts) == 0 {
		return []core.Evidence{c.evidence("No domains detected for BuiltWith lookup", confidenceDegraded)}
	}
	domain := hosts[0]
	if !c.allowNetwork || c.apiKey == "" {
		return []core.Evidence{c.degraded("BuiltWith not executed. Visit https://builtwith.com/" + domain)}
	}
	var resp struct {
		Results []struct {
			Result struct {
				Paths []struct {
					Technologies []struct {
						Name string `json:"Name"`
					} `json:"Technologies"`
				} `json:"Paths"`
			} `json:"Result"`
		} `json:"Results"`
	}
	if err := c.http.GetJSON(ctx, c.endpoint, url.Values{"KEY": {c.apiKey}, "LOOKUP": {domain}}, nil, &resp); err != nil {
		return []core.Evidence{c.failed("BuiltWith lookup for "+domain, err)}
	}
	var tech []string
	for _, r := range resp.Results {
		for _, path := range r.Result.Paths {
			for _, t := range path.Technologies {
				tech = append(tech, t.Name)
			}
		}
	}
	tech = firstN(unique(tech), 6)
	return []core.Evidence{c.evidence(fmt.Sprintf("BuiltWith: %s technologies=%v", domain, tech), 0.55).
		WithMetadata(map[string]interface{}{"domain": domain, "tech": tech})}
}

// Hunter searches Hunter.io for addresses on the first host.
type Hunter struct {
	base
	apiKey       string
	allowNetwork bool
	http         *HTTPClient
	endpoint     string
}

func NewHunter(apiKey string, allowNetwork bool, http *HTTPClient) *Hunter {
	return &Hunter{
		base:         base{name: "hunter.io", description: "Domain email discovery", network: true},
		apiKey:       apiKey,
		allowNetwork: allowNetwork,
		http:         http,
		endpoint:     "https://api.hunter.io/v2/domain-search",
	}
}

func (c *Hunter) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	hosts := extractHosts(p)
	if len(hosts) == 0 {
		return []core.Evidence{c.evidence("No domains detected for Hunter.io", confidenceDegraded)}
	}
	domain := hosts[0]
	if !c.allowNetwork || c.apiKey == "" {
		return []core.Evidence{c.degraded("Hunter not executed. Try https://hunter.io/domain-search/" + domain)}
	}
	var resp struct {
		Data struct {
			Pattern string `json:"pattern"`
			Emails  []struct {
				Value string `json:"value"`
			} `json:"emails"`
		} `json:"data"`
	}
	params := url.Values{"domain": {domain}, "api_key": {c.apiKey}, "limit": {"5"}}
	if err := c.http.GetJSON(ctx, c.endpoint, params, nil, &resp); err != nil {
		return []core.Evidence{c.failed("Hunter lookup for "+domain, err)}
	}
	var emails []string
	for _, e := range resp.Data.Emails {
		emails = append(emails, e.Value)
	}
	emails = firstN(emails, 5)
	return []core.Evidence{c.evidence(fmt.Sprintf("Hunter: %s pattern=%s emails=%v", domain, orUnknown(resp.Data.Pattern), emails), 0.6).
		WithMetadata(map[string]interface{}{"domain": domain, "emails": emails})}
}

// Phonebook points at phonebook.cz for emails and subdomains.
type Phonebook struct{ base }

func NewPhonebook() *Phonebook {
	return &Phonebook{base{name: "phonebook", description: "Phonebook.cz guidance"}}
}

func (c *Phonebook) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	hosts := extractHosts(p)
	if len(hosts) == 0 {
		return []core.Evidence{c.evidence("No domains detected for Phonebook.cz", confidenceDegraded)}
	}
	return []core.Evidence{c.evidence(
		fmt.Sprintf("Use https://phonebook.cz or https://phonebook.cz/search.php?q=%s for emails/subdomains", url.QueryEscape(hosts[0])), 0.35)}
}

// Wayback checks the Internet Archive for snapshots of the first URL or host.
type Wayback struct {
	base
	allowNetwork bool
	http         *HTTPClient
	endpoint     string
}

func NewWayback(allowNetwork bool, http *HTTPClient) *Wayback {
	return &Wayback{
		base:         base{name: "wayback", description: "Check historical snapshots", network: true},
		allowNetwork: allowNetwork,
		http:         http,
		endpoint:     "https://archive.org/wayback/available",
	}
}

func (c *Wayback) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	target := ""
	if urls := problemURLs(p); len(urls) > 0 {
		target = urls[0]
	} else if hosts := extractHosts(p); len(hosts) > 0 {
		target = hosts[0]
	}
	if target == "" {
		return []core.Evidence{c.evidence("No URL/domain for Wayback lookup", confidenceDegraded)}
	}
	if !c.allowNetwork {
		return []core.Evidence{c.degraded("Wayback not executed. Visit https://web.archive.org/web/*/" + target)}
	}
	var resp struct {
		ArchivedSnapshots struct {
			Closest struct {
				Available bool   `json:"available"`
				URL       string `json:"url"`
				Timestamp string `json:"timestamp"`
			} `json:"closest"`
		} `json:"archived_snapshots"`
	}
	if err := c.http.GetJSON(ctx, c.endpoint, url.Values{"url": {target}}, nil, &resp); err != nil {
		return []core.Evidence{c.failed("Wayback lookup for "+target, err)}
	}
	closest := resp.ArchivedSnapshots.Closest
	if !closest.Available {
		return []core.Evidence{c.evidence("No Wayback snapshot found for "+target, 0.3)}
	}
	return []core.Evidence{c.evidence(fmt.Sprintf("Wayback: snapshot at %s -> %s", closest.Timestamp, closest.URL), 0.5).
		WithMetadata(map[string]interface{}{"target": target})}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}
