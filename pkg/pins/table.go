// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package pins

// Header pins of the BeagleBone (P8, P9) and the onboard user LEDs.
const (
	USR0 Pin = iota + 1
	USR1
	USR2
	USR3
	P8_1
	P8_2
	P8_3
	P8_4
	P8_5
	P8_6
	P8_7
	P8_8
	P8_9
	P8_10
	P8_11
	P8_12
	P8_13
	P8_14
	P8_15
	P8_16
	P8_17
	P8_18
	P8_19
	P8_20
	P8_21
	P8_22
	P8_23
	P8_24
	P8_25
	P8_26
	P8_27
	P8_28
	P8_29
	P8_30
	P8_31
	P8_32
	P8_33
	P8_34
	P8_35
	P8_36
	P8_37
	P8_38
	P8_39
	P8_40
	P8_41
	P8_42
	P8_43
	P8_44
	P8_45
	P8_46
	P9_1
	P9_2
	P9_3
	P9_4
	P9_5
	P9_6
	P9_7
	P9_8
	P9_9
	P9_10
	P9_11
	P9_12
	P9_13
	P9_14
	P9_15
	P9_16
	P9_17
	P9_18
	P9_19
	P9_20
	P9_21
	P9_22
	P9_23
	P9_24
	P9_25
	P9_26
	P9_27
	P9_28
	P9_29
	P9_30
	P9_31
	P9_32
	P9_33
	P9_34
	P9_35
	P9_36
	P9_37
	P9_38
	P9_39
	P9_40
	P9_41
	P9_42
	P9_43
	P9_44
	P9_45
	P9_46
)

var pinNames = [...]string{
	USR0: "USR0",
	USR1: "USR1",
	USR2: "USR2",
	USR3: "USR3",
	P8_1: "P8_1",
	P8_2: "P8_2",
	P8_3: "P8_3",
	P8_4: "P8_4",
	P8_5: "P8_5",
	P8_6: "P8_6",
	P8_7: "P8_7",
	P8_8: "P8_8",
	P8_9: "P8_9",
	P8_10: "P8_10",
	P8_11: "P8_11",
	P8_12: "P8_12",
	P8_13: "P8_13",
	P8_14: "P8_14",
	P8_15: "P8_15",
	P8_16: "P8_16",
	P8_17: "P8_17",
	P8_18: "P8_18",
	P8_19: "P8_19",
	P8_20: "P8_20",
	P8_21: "P8_21",
	P8_22: "P8_22",
	P8_23: "P8_23",
	P8_24: "P8_24",
	P8_25: "P8_25",
	P8_26: "P8_26",
	P8_27: "P8_27",
	P8_28: "P8_28",
	P8_29: "P8_29",
	P8_30: "P8_30",
	P8_31: "P8_31",
	P8_32: "P8_32",
	P8_33: "P8_33",
	P8_34: "P8_34",
	P8_35: "P8_35",
	P8_36: "P8_36",
	P8_37: "P8_37",
	P8_38: "P8_38",
	P8_39: "P8_39",
	P8_40: "P8_40",
	P8_41: "P8_41",
	P8_42: "P8_42",
	P8_43: "P8_43",
	P8_44: "P8_44",
	P8_45: "P8_45",
	P8_46: "P8_46",
	P9_1: "P9_1",
	P9_2: "P9_2",
	P9_3: "P9_3",
	P9_4: "P9_4",
	P9_5: "P9_5",
	P9_6: "P9_6",
	P9_7: "P9_7",
	P9_8: "P9_8",
	P9_9: "P9_9",
	P9_10: "P9_10",
	P9_11: "P9_11",
	P9_12: "P9_12",
	P9_13: "P9_13",
	P9_14: "P9_14",
	P9_15: "P9_15",
	P9_16: "P9_16",
	P9_17: "P9_17",
	P9_18: "P9_18",
	P9_19: "P9_19",
	P9_20: "P9_20",
	P9_21: "P9_21",
	P9_22: "P9_22",
	P9_23: "P9_23",
	P9_24: "P9_24",
	P9_25: "P9_25",
	P9_26: "P9_26",
	P9_27: "P9_27",
	P9_28: "P9_28",
	P9_29: "P9_29",
	P9_30: "P9_30",
	P9_31: "P9_31",
	P9_32: "P9_32",
	P9_33: "P9_33",
	P9_34: "P9_34",
	P9_35: "P9_35",
	P9_36: "P9_36",
	P9_37: "P9_37",
	P9_38: "P9_38",
	P9_39: "P9_39",
	P9_40: "P9_40",
	P9_41: "P9_41",
	P9_42: "P9_42",
	P9_43: "P9_43",
	P9_44: "P9_44",
	P9_45: "P9_45",
	P9_46: "P9_46",
}

// capabilities of every pin, indexed by Pin.
// GPIO numbers of P9_17 and P9_18 are swapped, see http://bugs.elinux.org/issues/81
var capabilities = [...]Info{
	USR0: {GPIO: &GPIOInfo{Number: 53}, LED: "usr0"},
	USR1: {GPIO: &GPIOInfo{Number: 54}, LED: "usr1"},
	USR2: {GPIO: &GPIOInfo{Number: 55}, LED: "usr2"},
	USR3: {GPIO: &GPIOInfo{Number: 56}, LED: "usr3"},
	P8_1: {Supply: "Digital Ground"},
	P8_2: {Supply: "Digital Ground"},
	P8_3: {GPIO: &GPIOInfo{Number: 38, Func: "gpio1_6", MuxOffset: 0x018}, MMC: "mmc1_dat6"},
	P8_4: {GPIO: &GPIOInfo{Number: 39, Func: "gpio1_7", MuxOffset: 0x01c}, MMC: "mmc1_dat7"},
	P8_5: {GPIO: &GPIOInfo{Number: 34, Func: "gpio1_2", MuxOffset: 0x008}, MMC: "mmc1_dat2"},
	P8_6: {GPIO: &GPIOInfo{Number: 35, Func: "gpio1_3", MuxOffset: 0x00c}, MMC: "mmc1_dat3"},
	P8_7: {GPIO: &GPIOInfo{Number: 66, Func: "gpio2_2", MuxOffset: 0x090}, Timer: "timer4"},
	P8_8: {GPIO: &GPIOInfo{Number: 67, Func: "gpio2_3", MuxOffset: 0x094}, Timer: "timer7"},
	P8_9: {GPIO: &GPIOInfo{Number: 69, Func: "gpio2_5", MuxOffset: 0x09c}, Timer: "timer5"},
	P8_10: {GPIO: &GPIOInfo{Number: 68, Func: "gpio2_4", MuxOffset: 0x098}, Timer: "timer6"},
	P8_11: {GPIO: &GPIOInfo{Number: 45, Func: "gpio1_13", MuxOffset: 0x034}},
	P8_12: {GPIO: &GPIOInfo{Number: 44, Func: "gpio1_12", MuxOffset: 0x030}},
	P8_13: {GPIO: &GPIOInfo{Number: 23, Func: "gpio0_23", MuxOffset: 0x024}, PWM: &PWMInfo{Name: "pwm_2b", ID: 2, Mux: 4}},
	P8_14: {GPIO: &GPIOInfo{Number: 26, Func: "gpio0_26", MuxOffset: 0x028}},
	P8_15: {GPIO: &GPIOInfo{Number: 47, Func: "gpio1_15", MuxOffset: 0x03c}},
	P8_16: {GPIO: &GPIOInfo{Number: 46, Func: "gpio1_14", MuxOffset: 0x038}},
	P8_17: {GPIO: &GPIOInfo{Number: 27, Func: "gpio0_27", MuxOffset: 0x02c}},
	P8_18: {GPIO: &GPIOInfo{Number: 65, Func: "gpio2_1", MuxOffset: 0x08c}},
	P8_19: {GPIO: &GPIOInfo{Number: 22, Func: "gpio0_22", MuxOffset: 0x020}, PWM: &PWMInfo{Name: "pwm_2a", ID: 2, Mux: 4}},
	P8_20: {GPIO: &GPIOInfo{Number: 63, Func: "gpio1_31", MuxOffset: 0x084}, MMC: "mmc1_cmd"},
	P8_21: {GPIO: &GPIOInfo{Number: 62, Func: "gpio1_30", MuxOffset: 0x080}, MMC: "mmc1_clk"},
	P8_22: {GPIO: &GPIOInfo{Number: 37, Func: "gpio1_5", MuxOffset: 0x014}, MMC: "mmc1_dat5"},
	P8_23: {GPIO: &GPIOInfo{Number: 36, Func: "gpio1_4", MuxOffset: 0x010}, MMC: "mmc1_dat4"},
	P8_24: {GPIO: &GPIOInfo{Number: 33, Func: "gpio1_1", MuxOffset: 0x004}, MMC: "mmc1_dat1"},
	P8_25: {GPIO: &GPIOInfo{Number: 32, Func: "gpio1_0", MuxOffset: 0x000}, MMC: "mmc1_dat0"},
	P8_26: {GPIO: &GPIOInfo{Number: 61, Func: "gpio1_29", MuxOffset: 0x07c}},
	P8_27: {GPIO: &GPIOInfo{Number: 86, Func: "gpio2_22", MuxOffset: 0x0e0}, LCD: "lcd_vsync"},
	P8_28: {GPIO: &GPIOInfo{Number: 88, Func: "gpio2_24", MuxOffset: 0x0e8}, LCD: "lcd_pclk"},
	P8_29: {GPIO: &GPIOInfo{Number: 87, Func: "gpio2_23", MuxOffset: 0x0e4}, LCD: "lcd_hsync"},
	P8_30: {GPIO: &GPIOInfo{Number: 89, Func: "gpio2_25", MuxOffset: 0x0ec}, LCD: "lcd_ac_bias"},
	P8_31: {GPIO: &GPIOInfo{Number: 10, Func: "gpio0_10", MuxOffset: 0x0d8}, UART: &BusFunction{Name: "uart5_ctsn", ID: 5}, LCD: "lcd_data14"},
	P8_32: {GPIO: &GPIOInfo{Number: 11, Func: "gpio0_11", MuxOffset: 0x0dc}, UART: &BusFunction{Name: "uart5_rtsn", ID: 5}, LCD: "lcd_data15"},
	P8_33: {GPIO: &GPIOInfo{Number: 9, Func: "gpio0_9", MuxOffset: 0x0d4}, UART: &BusFunction{Name: "uart4_rtsn", ID: 4}, LCD: "lcd_data13"},
	P8_34: {GPIO: &GPIOInfo{Number: 81, Func: "gpio2_17", MuxOffset: 0x0cc}, PWM: &PWMInfo{Name: "pwm_1b", ID: 1, Mux: 2}, UART: &BusFunction{Name: "uart3_rtsn", ID: 3}, LCD: "lcd_data11"},
	P8_35: {GPIO: &GPIOInfo{Number: 8, Func: "gpio0_8", MuxOffset: 0x0d0}, UART: &BusFunction{Name: "uart4_ctsn", ID: 4}, LCD: "lcd_data12"},
	P8_36: {GPIO: &GPIOInfo{Number: 80, Func: "gpio2_16", MuxOffset: 0x0c8}, PWM: &PWMInfo{Name: "pwm_1a", ID: 1, Mux: 2}, UART: &BusFunction{Name: "uart3_ctsn", ID: 3}, LCD: "lcd_data10"},
	P8_37: {GPIO: &GPIOInfo{Number: 78, Func: "gpio2_14", MuxOffset: 0x0c0}, UART: &BusFunction{Name: "uart5_txd", ID: 5}, LCD: "lcd_data8"},
	P8_38: {GPIO: &GPIOInfo{Number: 79, Func: "gpio2_15", MuxOffset: 0x0c4}, UART: &BusFunction{Name: "uart5_rxd", ID: 5}, LCD: "lcd_data9"},
	P8_39: {GPIO: &GPIOInfo{Number: 76, Func: "gpio2_12", MuxOffset: 0x0b8}, LCD: "lcd_data6"},
	P8_40: {GPIO: &GPIOInfo{Number: 77, Func: "gpio2_13", MuxOffset: 0x0bc}, LCD: "lcd_data7"},
	P8_41: {GPIO: &GPIOInfo{Number: 74, Func: "gpio2_10", MuxOffset: 0x0b0}, LCD: "lcd_data4"},
	P8_42: {GPIO: &GPIOInfo{Number: 75, Func: "gpio2_11", MuxOffset: 0x0b4}, LCD: "lcd_data5"},
	P8_43: {GPIO: &GPIOInfo{Number: 72, Func: "gpio2_8", MuxOffset: 0x0a8}, LCD: "lcd_data2"},
	P8_44: {GPIO: &GPIOInfo{Number: 73, Func: "gpio2_9", MuxOffset: 0x0ac}, LCD: "lcd_data3"},
	P8_45: {GPIO: &GPIOInfo{Number: 70, Func: "gpio2_6", MuxOffset: 0x0a0}, PWM: &PWMInfo{Name: "pwm_2a", ID: 2, Mux: 3}, LCD: "lcd_data0"},
	P8_46: {GPIO: &GPIOInfo{Number: 71, Func: "gpio2_7", MuxOffset: 0x0a4}, PWM: &PWMInfo{Name: "pwm_2b", ID: 2, Mux: 3}, LCD: "lcd_data1"},
	P9_1: {Supply: "ground"},
	P9_2: {Supply: "ground"},
	P9_3: {Supply: "3.3 volts"},
	P9_4: {Supply: "3.3 volts"},
	P9_5: {Supply: "5 volts"},
	P9_6: {Supply: "5 volts"},
	P9_7: {Supply: "5 volts"},
	P9_8: {Supply: "5 volts"},
	P9_9: {Supply: "power button"},
	P9_10: {Supply: "reset button"},
	P9_11: {GPIO: &GPIOInfo{Number: 30, Func: "gpio0_30", MuxOffset: 0x070}, UART: &BusFunction{Name: "uart4_rxd", ID: 4}},
	P9_12: {GPIO: &GPIOInfo{Number: 60, Func: "gpio1_28", MuxOffset: 0x078}},
	P9_13: {GPIO: &GPIOInfo{Number: 31, Func: "gpio0_31", MuxOffset: 0x074}, UART: &BusFunction{Name: "uart4_txd", ID: 4}},
	P9_14: {GPIO: &GPIOInfo{Number: 50, Func: "gpio1_18", MuxOffset: 0x048}, PWM: &PWMInfo{Name: "pwm_1a", ID: 1, Mux: 6}},
	P9_15: {GPIO: &GPIOInfo{Number: 48, Func: "gpio1_16", MuxOffset: 0x040}},
	P9_16: {GPIO: &GPIOInfo{Number: 51, Func: "gpio1_19", MuxOffset: 0x04c}, PWM: &PWMInfo{Name: "pwm_1b", ID: 1, Mux: 6}},
	P9_17: {GPIO: &GPIOInfo{Number: 5, Func: "gpio0_5", MuxOffset: 0x15c}, I2C: &BusFunction{Name: "i2c1_scl", ID: 1}, SPI: &BusFunction{Name: "spi0_cs0", ID: 0}},
	P9_18: {GPIO: &GPIOInfo{Number: 4, Func: "gpio0_4", MuxOffset: 0x158}, I2C: &BusFunction{Name: "i2c1_sda", ID: 1}, SPI: &BusFunction{Name: "spi0_d1", ID: 0}},
	P9_19: {I2C: &BusFunction{Name: "i2c2_scl", ID: 2}, SPI: &BusFunction{Name: "spi1_cs1", ID: 1}, UART: &BusFunction{Name: "uart1_rtsn", ID: 1}},
	P9_20: {I2C: &BusFunction{Name: "i2c2_sda", ID: 2}, SPI: &BusFunction{Name: "spi1_cs0", ID: 1}, UART: &BusFunction{Name: "uart1_ctsn", ID: 1}},
	P9_21: {GPIO: &GPIOInfo{Number: 3, Func: "gpio0_3", MuxOffset: 0x154}, PWM: &PWMInfo{Name: "pwm_0b", ID: 0, Mux: 3}, I2C: &BusFunction{Name: "i2c2_scl", ID: 2}, SPI: &BusFunction{Name: "spi0_d0", ID: 0}, UART: &BusFunction{Name: "uart2_txd", ID: 2}},
	P9_22: {GPIO: &GPIOInfo{Number: 2, Func: "gpio0_2", MuxOffset: 0x150}, PWM: &PWMInfo{Name: "pwm_0a", ID: 0, Mux: 3}, I2C: &BusFunction{Name: "i2c2_sda", ID: 2}, SPI: &BusFunction{Name: "spi0_sclk", ID: 0}, UART: &BusFunction{Name: "uart2_rxd", ID: 2}},
	P9_23: {GPIO: &GPIOInfo{Number: 49, Func: "gpio1_17", MuxOffset: 0x044}},
	P9_24: {GPIO: &GPIOInfo{Number: 15, Func: "gpio0_15", MuxOffset: 0x184}, I2C: &BusFunction{Name: "i2c1_scl", ID: 1}, UART: &BusFunction{Name: "uart1_txd", ID: 1}},
	P9_25: {GPIO: &GPIOInfo{Number: 117, Func: "gpio3_21", MuxOffset: 0x1ac}, MCASP: "mcasp0_ahclkx"},
	P9_26: {GPIO: &GPIOInfo{Number: 14, Func: "gpio0_14", MuxOffset: 0x180}, I2C: &BusFunction{Name: "i2c1_sda", ID: 2}, UART: &BusFunction{Name: "uart1_rxd", ID: 1}},
	P9_27: {GPIO: &GPIOInfo{Number: 115, Func: "gpio3_19", MuxOffset: 0x1a4}},
	P9_28: {GPIO: &GPIOInfo{Number: 113, Func: "gpio3_17", MuxOffset: 0x19c}, PWM: &PWMInfo{Name: "ecappwm2", ID: 3, Mux: 4}, SPI: &BusFunction{Name: "spi1_cs0", ID: 1}, MCASP: "mcasp0_ahclkr"},
	P9_29: {GPIO: &GPIOInfo{Number: 111, Func: "gpio3_15", MuxOffset: 0x194}, PWM: &PWMInfo{Name: "pwm_0b", ID: 0, Mux: 1}, SPI: &BusFunction{Name: "spi1_d0", ID: 1}, MCASP: "mcasp0_fsx"},
	P9_30: {GPIO: &GPIOInfo{Number: 112, Func: "gpio3_16", MuxOffset: 0x198}, SPI: &BusFunction{Name: "spi1_d1", ID: 1}},
	P9_31: {GPIO: &GPIOInfo{Number: 110, Func: "gpio3_14", MuxOffset: 0x190}, PWM: &PWMInfo{Name: "pwm_0a", ID: 0, Mux: 1}, SPI: &BusFunction{Name: "spi1_sclk", ID: 1}, MCASP: "mcasp0_aclkx"},
	P9_32: {Supply: "analog output 1.8v"},
	P9_33: {Analog: &AnalogInfo{Channel: 4}},
	P9_34: {Supply: "analog ground"},
	P9_35: {Analog: &AnalogInfo{Channel: 6}},
	P9_36: {Analog: &AnalogInfo{Channel: 5}},
	P9_37: {Analog: &AnalogInfo{Channel: 2}},
	P9_38: {Analog: &AnalogInfo{Channel: 3}},
	P9_39: {Analog: &AnalogInfo{Channel: 0}},
	P9_40: {Analog: &AnalogInfo{Channel: 1}},
	P9_41: {GPIO: &GPIOInfo{Number: 20, Func: "gpio0_20", MuxOffset: 0x1b4}},
	P9_42: {GPIO: &GPIOInfo{Number: 7, Func: "gpio0_7", MuxOffset: 0x164}, PWM: &PWMInfo{Name: "ecappwm0", ID: 4, Mux: 0}, SPI: &BusFunction{Name: "spi1_sclk", ID: 1}, UART: &BusFunction{Name: "uart3_txd", ID: 3}},
	P9_43: {Supply: "ground"},
	P9_44: {Supply: "ground"},
	P9_45: {Supply: "ground"},
	P9_46: {Supply: "ground"},
}
