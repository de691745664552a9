package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTEMATCH_MQTT_BROKER.
const EnvPrefix = "NOTEMATCH"

// bindEnv maps NOTEMATCH_SECTION_KEY variables onto section.key settings.
// Only keys with a default are resolved, which setDefaultConfig guarantees.
func bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
