package metadata

// SDKVersion is reported in every metadata snapshot and request header.
const SDKVersion = "1.4.0"

// InstallationMetadata describes one installation at the moment it was
// composed. Optional attributes are empty when their source is unavailable.
type InstallationMetadata struct {
	DeviceID      string `json:"device_id"`
	AppBuild      string `json:"app_build"`
	AppVersion    string `json:"app_version"`
	DeviceModel   string `json:"device_model"`
	Locale        string `json:"locale"`
	OSVersion     string `json:"os_version"`
	Platform      string `json:"platform"`
	Timezone      string `json:"timezone"`
	UserAgent     string `json:"user_agent"`
	AdvertisingID string `json:"advertising_id,omitempty"`
	AppSetID      string `json:"app_set_id,omitempty"`
	AndroidID     string `json:"android_id"`
	StoreCountry  string `json:"store_country"`
	IP            string `json:"ip,omitempty"`
	SDKVersion    string `json:"sdk_version"`
}

// Facts are device properties fixed for the life of the process.
type Facts struct {
	AppBuild    string
	AppVersion  string
	DeviceModel string
	OSVersion   string
	Platform    string
	AndroidID   string
}

// DeviceInfo is the platform port for device properties. Facts is read once;
// Locale and Timezone are read on every compose since the user may change them
// while the app runs.
type DeviceInfo interface {
	Facts() Facts
	Locale() string
	Timezone() string
}
