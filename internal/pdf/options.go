package pdf

// Defaults is the fixed base print configuration. It comes from process
// config and is read-only after startup.
type Defaults struct {
	Format string
	Margin string
}

// RenderOptions is the resolved print configuration handed to the render
// step. It keeps the merged key set open-ended: unknown caller keys pass
// through untouched and are interpreted (or rejected) by the engine at
// render time.
type RenderOptions struct {
	values map[string]any
}

// Resolve merges the fixed defaults with caller overrides. Merge is shallow
// except for the "margin" sub-object, which merges per side so a caller
// supplying only "top" keeps the default right/bottom/left. Resolve never
// fails; type mismatches surface later as EngineRejectedOptions.
func Resolve(d Defaults, overrides map[string]any) RenderOptions {
	format := d.Format
	if format == "" {
		format = "A4"
	}
	margin := d.Margin
	if margin == "" {
		margin = "1cm"
	}

	values := map[string]any{
		"format": format,
		"margin": map[string]any{
			"top":    margin,
			"right":  margin,
			"bottom": margin,
			"left":   margin,
		},
		"print_background":     true,
		"prefer_css_page_size": true,
	}

	for k, v := range overrides {
		if k == "margin" {
			if base, ok := values["margin"].(map[string]any); ok {
				if override, ok := v.(map[string]any); ok {
					merged := make(map[string]any, len(base))
					for side, sv := range base {
						merged[side] = sv
					}
					for side, sv := range override {
						merged[side] = sv
					}
					values["margin"] = merged
					continue
				}
			}
		}
		values[k] = v
	}

	return RenderOptions{values: values}
}

// Get returns the value stored under key.
func (o RenderOptions) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Map returns a copy of the resolved option set, safe for logging.
func (o RenderOptions) Map() map[string]any {
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}
