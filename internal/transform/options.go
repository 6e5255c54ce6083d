package transform

// Options selects which randomized steps ApplyRandom performs. The four
// flags are independent; enabled steps always run in the fixed order
// scale, outline, rotation, pixel noise.
type Options struct {
	RandomSize  bool `mapstructure:"random_size"  yaml:"random_size"  json:"random_size"`
	RandomAngle bool `mapstructure:"random_angle" yaml:"random_angle" json:"random_angle"`
	RandomPixel bool `mapstructure:"random_pixel" yaml:"random_pixel" json:"random_pixel"`
	AddOutline  bool `mapstructure:"add_outline"  yaml:"add_outline"  json:"add_outline"`
}

// DefaultOptions enables every transform step.
func DefaultOptions() Options {
	return Options{
		RandomSize:  true,
		RandomAngle: true,
		RandomPixel: true,
		AddOutline:  true,
	}
}

// Any reports whether at least one step is enabled.
func (o Options) Any() bool {
	return o.RandomSize || o.RandomAngle || o.RandomPixel || o.AddOutline
}
