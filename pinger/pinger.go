// Copyright 2025 The mtuned Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pinger

import (
	"context"
	"math"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrUnavailable 代表单次测量未产生可用数据 调用方可按重试预算重试
var ErrUnavailable = errors.New("measurement unavailable")

// Sample 单次测量得到的链路指标
type Sample struct {
	LatencyMs      float64
	ThroughputMbps float64
	PacketLossPct  float64
	JitterMs       float64
}

// Measurer 链路测量抽象
//
// 测量流量绑定 iface 的源地址发出 多网卡主机上
// 报文不会从其他接口路由出去 测量结果始终对应被调优的链路
//
// payloadSize 为 ICMP Data 段长度 探测候选 MTU 时
// 取 mtu-28 (IP header 20 bytes + ICMP header 8 bytes)
type Measurer interface {
	Measure(ctx context.Context, iface, target string, payloadSize int) (Sample, error)
}

type Config struct {
	// Count 单次测量发送的 Echo 请求数
	Count int `config:"count"`

	// Timeout 单个 Echo 请求的应答超时
	Timeout time.Duration `config:"timeout"`

	// ThroughputAddr 吞吐测量的 TCP 参考端点 为空时使用 Echo 应答估算
	ThroughputAddr string `config:"throughputAddr"`

	// ThroughputDuration 单次吞吐测量时长
	ThroughputDuration time.Duration `config:"throughputDuration"`
}

func (c *Config) Validate() {
	if c.Count <= 0 {
		c.Count = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.ThroughputDuration <= 0 {
		c.ThroughputDuration = 2 * time.Second
	}
}

// Pinger 基于 ICMP Echo 的 Measurer 实现
//
// 使用 udp4 协议族的 unprivileged socket 无需 CAP_NET_RAW
// 但要求 net.ipv4.ping_group_range 放行当前用户组
type Pinger struct {
	cfg Config
}

func New(cfg Config) *Pinger {
	cfg.Validate()
	return &Pinger{cfg: cfg}
}

func (p *Pinger) Measure(ctx context.Context, iface, target string, payloadSize int) (Sample, error) {
	if payloadSize <= 0 {
		return Sample{}, errors.Wrap(ErrUnavailable, "non-positive payload size")
	}

	src, err := ifaceIPv4(iface)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrUnavailable, "source address of %s: %v", iface, err)
	}
	ip, err := resolveIPv4(target)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrUnavailable, "resolve %s: %v", target, err)
	}

	rtts, err := p.echoRound(ctx, src, ip, payloadSize)
	if err != nil {
		return Sample{}, err
	}
	if len(rtts) == 0 {
		return Sample{}, errors.Wrapf(ErrUnavailable, "no echo reply from %s", target)
	}

	sample := Sample{
		LatencyMs:     avgMs(rtts),
		JitterMs:      jitterMs(rtts),
		PacketLossPct: float64(p.cfg.Count-len(rtts)) / float64(p.cfg.Count) * 100,
	}

	if p.cfg.ThroughputAddr != "" {
		sample.ThroughputMbps, err = p.tcpThroughput(ctx, src)
		if err != nil {
			return Sample{}, err
		}
	} else {
		sample.ThroughputMbps = estimateThroughput(rtts, payloadSize)
	}
	return sample, nil
}

// echoRound 发送一轮 Echo 请求 返回成功应答的 RTT 序列
//
// socket 绑定 src 请求必然从对应的接口发出
func (p *Pinger) echoRound(ctx context.Context, src, ip net.IP, payloadSize int) ([]time.Duration, error) {
	conn, err := icmp.ListenPacket("udp4", src.String())
	if err != nil {
		return nil, errors.Wrap(err, "listen icmp")
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	payload := make([]byte, payloadSize)
	dst := &net.UDPAddr{IP: ip}

	var rtts []time.Duration
	for seq := 0; seq < p.cfg.Count; seq++ {
		select {
		case <-ctx.Done():
			return rtts, ctx.Err()
		default:
		}

		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
		}
		wb, err := msg.Marshal(nil)
		if err != nil {
			return nil, errors.Wrap(err, "marshal echo")
		}

		start := time.Now()
		if _, err := conn.WriteTo(wb, dst); err != nil {
			// 发送失败按丢包处理 链路此时可能尚未从 MTU 变更中恢复
			continue
		}
		if rtt, ok := p.awaitReply(conn, seq, start); ok {
			rtts = append(rtts, rtt)
		}
	}
	return rtts, nil
}

// awaitReply 等待指定 Seq 的 Echo 应答 超时返回 false
func (p *Pinger) awaitReply(conn *icmp.PacketConn, seq int, start time.Time) (time.Duration, bool) {
	deadline := start.Add(p.cfg.Timeout)
	rb := make([]byte, 65536)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, false
		}
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, false
		}

		msg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok || msg.Type != ipv4.ICMPTypeEchoReply || echo.Seq != seq {
			continue
		}
		return time.Since(start), true
	}
}

// tcpThroughput 从参考端点持续读取固定时长 统计下行吞吐
func (p *Pinger) tcpThroughput(ctx context.Context, src net.IP) (float64, error) {
	d := net.Dialer{
		Timeout:   p.cfg.Timeout,
		LocalAddr: &net.TCPAddr{IP: src},
	}
	conn, err := d.DialContext(ctx, "tcp", p.cfg.ThroughputAddr)
	if err != nil {
		return 0, errors.Wrapf(ErrUnavailable, "dial %s: %v", p.cfg.ThroughputAddr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(p.cfg.ThroughputDuration)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, errors.Wrap(ErrUnavailable, err.Error())
	}

	buf := make([]byte, 64<<10)
	start := time.Now()
	var total int64
	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		total += int64(n)
		if err != nil {
			break
		}
	}

	elapsed := time.Since(start).Seconds()
	if total == 0 || elapsed <= 0 {
		return 0, errors.Wrapf(ErrUnavailable, "no bytes received from %s", p.cfg.ThroughputAddr)
	}
	return float64(total) * 8 / elapsed / 1e6, nil
}

// estimateThroughput 无参考端点时以 Echo 载荷往返估算吞吐
//
// 估算值仅用于候选间的相对比较 不代表链路真实带宽
func estimateThroughput(rtts []time.Duration, payloadSize int) float64 {
	var sum time.Duration
	for _, rtt := range rtts {
		sum += rtt
	}
	if sum <= 0 {
		return 0
	}
	bits := float64(payloadSize*8*len(rtts)) * 2 // 载荷往返各一次
	return bits / sum.Seconds() / 1e6
}

// ifaceIPv4 返回接口的首个 IPv4 地址
func ifaceIPv4(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipn, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipn.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errors.Errorf("no IPv4 address on %s", name)
}

func resolveIPv4(target string) (net.IP, error) {
	addrs, err := net.LookupIP(target)
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errors.Errorf("no IPv4 address for %s", target)
}

func avgMs(rtts []time.Duration) float64 {
	var sum time.Duration
	for _, rtt := range rtts {
		sum += rtt
	}
	return float64(sum) / float64(time.Millisecond) / float64(len(rtts))
}

// jitterMs 相邻 RTT 差值绝对值的均值
func jitterMs(rtts []time.Duration) float64 {
	if len(rtts) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(rtts); i++ {
		sum += math.Abs(float64(rtts[i]-rtts[i-1]) / float64(time.Millisecond))
	}
	return sum / float64(len(rtts)-1)
}
