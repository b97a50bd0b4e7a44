package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type VolumeMount struct {
	// Host directory; relative paths resolve against the project directory
	HostPath string `yaml:"host_path" json:"host_path"`

	// Path inside the container where the directory is mounted
	MountPath string `yaml:"mount_path" json:"mount_path"`

	ReadOnly bool `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// ParseVolumeMount accepts "host:container" with an optional ":ro" or ":rw".
func ParseVolumeMount(s string) (VolumeMount, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return VolumeMount{}, fmt.Errorf("volume %q must be host:container[:ro]", s)
	}

	vm := VolumeMount{HostPath: parts[0], MountPath: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			vm.ReadOnly = true
		case "rw":
		default:
			return VolumeMount{}, fmt.Errorf("volume %q has unknown mode %q", s, parts[2])
		}
	}
	return vm, nil
}

func (v VolumeMount) String() string {
	s := v.HostPath + ":" + v.MountPath
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

func (v *VolumeMount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseVolumeMount(value.Value)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	type plain VolumeMount
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*v = VolumeMount(p)
	return nil
}

func (v VolumeMount) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}
