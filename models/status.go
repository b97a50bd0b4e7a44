package models

type ServiceStatus struct {
	Service   string   `json:"service"`
	Container string   `json:"container"`
	Image     string   `json:"image"`
	State     string   `json:"state"`
	Status    string   `json:"status"`
	Run       string   `json:"run,omitempty"`
	Ports     []string `json:"ports,omitempty"`
}
