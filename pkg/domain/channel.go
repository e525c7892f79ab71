package domain

// Channel binds a messaging-channel address to a project and its delivery credentials.
type Channel struct {
	ProjectID     string `json:"project_id" yaml:"project_id"`
	PhoneNumberID string `json:"phone_number_id" yaml:"phone_number_id"`
	AccessToken   string `json:"-" yaml:"access_token"`
}
