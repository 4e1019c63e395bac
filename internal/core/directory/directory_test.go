package directory

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

func instance(service, name string, port uint16) types.ServiceInstance {
	return types.ServiceInstance{
		ServiceName:  service,
		InstanceName: name,
		HostName:     "myhost.local.",
		Port:         port,
		Text:         []string{"a=1"},
		IPv4:         netip.MustParseAddr("192.168.1.2"),
	}
}

func TestDirectory_AddRemove(t *testing.T) {
	d := New()
	assert.Empty(t, d.Instances("_foo._tcp"))

	d.AddInstance(instance("_foo._tcp", "bar", 80))
	d.AddInstance(instance("_foo._tcp", "Alpha", 81))
	d.AddInstance(instance("_baz._udp", "qux", 82))
	assert.Equal(t, 3, d.Len())

	insts := d.Instances("_FOO._tcp")
	require.Len(t, insts, 2, "服务名不区分大小写")
	assert.Equal(t, "Alpha", insts[0].InstanceName)
	assert.Equal(t, "bar", insts[1].InstanceName)

	assert.Equal(t, []string{"_baz._udp", "_foo._tcp"}, d.Services())

	d.RemoveInstance("_foo._tcp", "BAR")
	_, ok := d.Lookup("_foo._tcp", "bar")
	assert.False(t, ok)

	d.RemoveInstance("_baz._udp", "qux")
	assert.Equal(t, []string{"_foo._tcp"}, d.Services(), "没有实例的服务被移除")

	t.Run("移除不存在的实例", func(t *testing.T) {
		d.RemoveInstance("_none._tcp", "x")
		d.RemoveInstance("_foo._tcp", "x")
		assert.Equal(t, 1, d.Len())
	})
}

func TestDirectory_Change(t *testing.T) {
	d := New()
	d.AddInstance(instance("_foo._tcp", "bar", 80))

	changed := instance("_foo._tcp", "bar", 8080)
	changed.Text = []string{"a=2"}
	d.ChangeInstance(changed)

	got, ok := d.Lookup("_foo._tcp", "bar")
	require.True(t, ok)
	assert.True(t, got.Equal(changed))
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_ReturnsCopies(t *testing.T) {
	d := New()
	inst := instance("_foo._tcp", "bar", 80)
	d.AddInstance(inst)
	inst.Text[0] = "mutated"

	got, _ := d.Lookup("_foo._tcp", "bar")
	assert.Equal(t, []string{"a=1"}, got.Text)

	got.Text[0] = "mutated"
	assert.Equal(t, []string{"a=1"}, d.Instances("_foo._tcp")[0].Text)
}

func TestDirectory_Concurrent(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("inst%d", i)
			for j := 0; j < 100; j++ {
				d.AddInstance(instance("_foo._tcp", name, uint16(j)))
				_ = d.Instances("_foo._tcp")
				d.RemoveInstance("_foo._tcp", name)
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, d.Len())
}

func TestModule(t *testing.T) {
	var (
		d   *Directory
		dir interfaces.ServiceDirectory
	)
	app := fxtest.New(t, Module, fx.Populate(&d, &dir))
	app.RequireStart()
	defer app.RequireStop()

	dir.AddInstance(instance("_foo._tcp", "bar", 80))
	assert.Len(t, d.Instances("_foo._tcp"), 1, "两个类型指向同一目录")
}
