package registrar

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// apiResponse 所有命令共用的响应外壳
//
//	<ApiResponse Status="OK">
//	  <Errors/>
//	  <CommandResponse Type="...">...</CommandResponse>
//	</ApiResponse>
type apiResponse struct {
	XMLName         xml.Name         `xml:"ApiResponse"`
	Status          string           `xml:"Status,attr"`
	Errors          []apiError       `xml:"Errors>Error"`
	CommandResponse *commandResponse `xml:"CommandResponse"`
}

type apiError struct {
	Number  string `xml:"Number,attr"`
	Message string `xml:",chardata"`
}

type commandResponse struct {
	Type                string               `xml:"Type,attr"`
	DomainCheckResults  []domainCheckResult  `xml:"DomainCheckResult"`
	DomainCreateResult  *domainCreateResult  `xml:"DomainCreateResult"`
	DomainGetListResult *domainGetListResult `xml:"DomainGetListResult"`
	Paging              *paging              `xml:"Paging"`
}

type domainCheckResult struct {
	Domain        string `xml:"Domain,attr"`
	Available     bool   `xml:"Available,attr"`
	IsPremiumName bool   `xml:"IsPremiumName,attr"`
}

type domainCreateResult struct {
	Domain            string `xml:"Domain,attr"`
	Registered        bool   `xml:"Registered,attr"`
	ChargedAmount     string `xml:"ChargedAmount,attr"`
	DomainID          string `xml:"DomainID,attr"`
	OrderID           string `xml:"OrderID,attr"`
	NonRealTimeDomain bool   `xml:"NonRealTimeDomain,attr"`
}

type domainGetListResult struct {
	Domains []listedDomain `xml:"Domain"`
}

type listedDomain struct {
	ID        string `xml:"ID,attr"`
	Name      string `xml:"Name,attr"`
	Created   string `xml:"Created,attr"`
	Expires   string `xml:"Expires,attr"`
	IsExpired bool   `xml:"IsExpired,attr"`
	AutoRenew bool   `xml:"AutoRenew,attr"`
}

type paging struct {
	TotalItems  int `xml:"TotalItems"`
	CurrentPage int `xml:"CurrentPage"`
	PageSize    int `xml:"PageSize"`
}

func (d listedDomain) toRegisteredDomain() (RegisteredDomain, error) {
	if d.Name == "" {
		return RegisteredDomain{}, fmt.Errorf("empty domain name")
	}
	created, err := parseDate(d.Created)
	if err != nil {
		return RegisteredDomain{}, fmt.Errorf("created: %w", err)
	}
	expires, err := parseDate(d.Expires)
	if err != nil {
		return RegisteredDomain{}, fmt.Errorf("expires: %w", err)
	}
	return RegisteredDomain{
		RegistrarID: d.ID,
		Name:        strings.ToLower(d.Name),
		CreatedAt:   created,
		ExpiresAt:   expires,
		IsExpired:   d.IsExpired,
		AutoRenew:   d.AutoRenew,
	}, nil
}

// parseDate 解析 MM/DD/YYYY，空值返回 nil
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
